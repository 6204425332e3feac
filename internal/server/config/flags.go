package config

import (
	"flag"
	"io"
	"time"

	"github.com/dmitrijs2005/tokenguard/internal/flagx"
)

// parseFlags populates server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-g string   gRPC bind address (e.g., ":50051")
//	-d string   PostgreSQL DSN
//	-r string   Redis address
//	-p string   SQLite database file
//	-b string   store backend: postgres, redis or sqlite
//	-s string   secret salt, base64
//	-t int      token duration, seconds
//	-w int      grace period, seconds
//	-l string   log level
//
// args are filtered with flagx.FilterArgs first so flags owned by other
// parsers (such as -c) do not cause errors here.
func parseFlags(config *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-g", "-d", "-r", "-p", "-b", "-s", "-t", "-w", "-l"})

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "HTTP address and port to run server")
	fs.StringVar(&config.EndpointAddrGRPC, "g", config.EndpointAddrGRPC, "gRPC address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "redis address")
	fs.StringVar(&config.SQLitePath, "p", config.SQLitePath, "sqlite database file")
	fs.StringVar(&config.StoreBackend, "b", config.StoreBackend, "store backend (postgres|redis|sqlite)")
	fs.StringVar(&config.SecretSalt, "s", config.SecretSalt, "secret salt (base64)")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	tokenDuration := fs.Int64("t", int64(config.TokenDuration/time.Second), "token duration (in seconds)")
	gracePeriod := fs.Int64("w", int64(config.GracePeriod/time.Second), "grace period (in seconds)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	// Only override durations that were given, so values from files survive.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "t":
			config.TokenDuration = time.Duration(*tokenDuration) * time.Second
		case "w":
			config.GracePeriod = time.Duration(*gracePeriod) * time.Second
		}
	})

	return nil
}
