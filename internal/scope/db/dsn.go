package db

import (
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/dsjohal14/sqlpoll/internal/libs/config"
)

// Driver names registered with database/sql
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite3"
)

// Target is a resolved database/sql driver and data source name
type Target struct {
	Driver string
	DSN    string
	// Dropped lists connection url parameters with no driver equivalent
	Dropped []string
}

// ResolveTarget turns a JDBC-style connection url plus credentials into a driver DSN.
// Supported forms: jdbc:mysql://, mysql://, jdbc:postgresql://, postgres://, postgresql://,
// sqlite3://<path>, jdbc:sqlite:<path> and file:<path>.
func ResolveTarget(rawURL, user, password string) (Target, error) {
	trimmed := strings.TrimPrefix(rawURL, "jdbc:")

	switch {
	case strings.HasPrefix(trimmed, "mysql://"):
		dsn, dropped, err := mysqlDSN(trimmed, user, password)
		if err != nil {
			return Target{}, err
		}
		return Target{Driver: DriverMySQL, DSN: dsn, Dropped: dropped}, nil

	case strings.HasPrefix(trimmed, "postgresql://"), strings.HasPrefix(trimmed, "postgres://"):
		u, err := url.Parse(trimmed)
		if err != nil {
			return Target{}, fmt.Errorf("%w: invalid postgres url: %v", config.ErrConfiguration, err)
		}
		u.Scheme = "postgres"
		if user != "" {
			u.User = url.UserPassword(user, password)
		}
		return Target{Driver: DriverPostgres, DSN: u.String()}, nil

	case strings.HasPrefix(rawURL, "sqlite3://"):
		return Target{Driver: DriverSQLite, DSN: strings.TrimPrefix(rawURL, "sqlite3://")}, nil

	case strings.HasPrefix(trimmed, "sqlite:"):
		return Target{Driver: DriverSQLite, DSN: strings.TrimPrefix(trimmed, "sqlite:")}, nil

	case strings.HasPrefix(rawURL, "file:"):
		return Target{Driver: DriverSQLite, DSN: rawURL}, nil
	}

	return Target{}, fmt.Errorf("%w: unsupported connection.url %q", config.ErrConfiguration, rawURL)
}

// mysqlDriverParams are DSN parameters go-sql-driver/mysql handles itself
var mysqlDriverParams = map[string]bool{
	"allowAllFiles":            true,
	"allowCleartextPasswords":  true,
	"allowFallbackToPlaintext": true,
	"allowNativePasswords":     true,
	"allowOldPasswords":        true,
	"charset":                  true,
	"checkConnLiveness":        true,
	"clientFoundRows":          true,
	"collation":                true,
	"columnsWithAlias":         true,
	"connectionAttributes":     true,
	"interpolateParams":        true,
	"loc":                      true,
	"maxAllowedPacket":         true,
	"multiStatements":          true,
	"readTimeout":              true,
	"rejectReadOnly":           true,
	"timeout":                  true,
	"timeTruncate":             true,
	"tls":                      true,
	"writeTimeout":             true,
}

// jdbcCharsets maps Java encoding names to MySQL character sets
var jdbcCharsets = map[string]string{
	"utf8":       "utf8mb4",
	"utf-8":      "utf8mb4",
	"utf8mb4":    "utf8mb4",
	"iso-8859-1": "latin1",
	"latin1":     "latin1",
	"us-ascii":   "ascii",
	"gbk":        "gbk",
	"gb2312":     "gb2312",
	"big5":       "big5",
	"cp1252":     "latin1",
}

// mysqlDSN builds a go-sql-driver DSN. JDBC connector properties are translated to driver
// settings where one exists and dropped otherwise, since the driver sends unknown parameters
// to the server as session variables. Lower-case keys (sql_mode, time_zone) are forwarded.
func mysqlDSN(rawURL, user, password string) (string, []string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", nil, fmt.Errorf("%w: invalid mysql url: %v", config.ErrConfiguration, err)
	}

	host := u.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := u.Port()
	if port == "" {
		port = "3306"
	}

	cfg := mysql.NewConfig()
	cfg.User = user
	cfg.Passwd = password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(host, port)
	cfg.DBName = strings.TrimPrefix(u.Path, "/")
	cfg.AllowNativePasswords = true
	cfg.ParseTime = true

	params := u.Query()
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var dropped []string
	for _, key := range keys {
		value := params.Get(key)
		switch {
		case key == "useSSL":
			if on, err := strconv.ParseBool(value); err == nil {
				cfg.TLSConfig = "false"
				if on {
					cfg.TLSConfig = "skip-verify"
				}
			}
		case key == "characterEncoding":
			cs, ok := jdbcCharsets[strings.ToLower(value)]
			if !ok {
				return "", nil, fmt.Errorf("%w: unsupported characterEncoding %q", config.ErrConfiguration, value)
			}
			setParam(cfg, "charset", cs)
		case key == "connectTimeout":
			if ms, err := strconv.Atoi(value); err == nil && ms > 0 {
				cfg.Timeout = time.Duration(ms) * time.Millisecond
			}
		case key == "socketTimeout":
			if ms, err := strconv.Atoi(value); err == nil && ms > 0 {
				cfg.ReadTimeout = time.Duration(ms) * time.Millisecond
				cfg.WriteTimeout = cfg.ReadTimeout
			}
		case key == "serverTimezone":
			loc, err := time.LoadLocation(value)
			if err != nil {
				return "", nil, fmt.Errorf("%w: invalid serverTimezone %q: %v", config.ErrConfiguration, value, err)
			}
			cfg.Loc = loc
		case key == "useUnicode":
			// implied by the charset
		case mysqlDriverParams[key], isSessionVariable(key):
			setParam(cfg, key, value)
		default:
			dropped = append(dropped, key)
		}
	}

	return cfg.FormatDSN(), dropped, nil
}

func setParam(cfg *mysql.Config, key, value string) {
	if cfg.Params == nil {
		cfg.Params = make(map[string]string)
	}
	cfg.Params[key] = value
}

// isSessionVariable reports whether key is shaped like a MySQL system variable
func isSessionVariable(key string) bool {
	for _, r := range key {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' {
			return false
		}
	}
	return key != ""
}
