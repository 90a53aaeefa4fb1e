// Package postgres provides PostgreSQL connection options for the pgvector
// index backend.
package postgres

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/videoqa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// tablePattern accepts "table" or "schema.table".
var tablePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Options defines configuration options for PostgreSQL.
type Options struct {
	Host                  string        `json:"host" mapstructure:"host"`
	Port                  int           `json:"port" mapstructure:"port"`
	Username              string        `json:"username" mapstructure:"username"`
	Password              string        `json:"-" mapstructure:"password"`
	Database              string        `json:"database" mapstructure:"database"`
	SSLMode               string        `json:"ssl-mode" mapstructure:"ssl-mode"`
	MaxIdleConnections    int           `json:"max-idle-connections" mapstructure:"max-idle-connections"`
	MaxOpenConnections    int           `json:"max-open-connections" mapstructure:"max-open-connections"`
	MaxConnectionLifeTime time.Duration `json:"max-connection-life-time" mapstructure:"max-connection-life-time"`
	// LogLevel gorm 日志级别：1 silent, 2 error, 3 warn, 4 info。
	LogLevel int `json:"log-level" mapstructure:"log-level"`

	// Table holds the passages of every indexed video.
	Table string `json:"table" mapstructure:"table"`
	// Dim is the embedding dimension of the vector column.
	Dim int `json:"dim" mapstructure:"dim"`
}

// NewOptions creates a new Options object with default values.
func NewOptions() *Options {
	return &Options{
		Host:                  "127.0.0.1",
		Port:                  5432,
		Username:              "postgres",
		Database:              "videoqa",
		SSLMode:               "disable",
		MaxIdleConnections:    5,
		MaxOpenConnections:    10,
		MaxConnectionLifeTime: 30 * time.Minute,
		LogLevel:              1,
		Table:                 "videoqa_passages",
		Dim:                   384,
	}
}

// DSN returns the connection URL.
func (o *Options) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(o.Username, o.Password),
		Host:   net.JoinHostPort(o.Host, strconv.Itoa(o.Port)),
		Path:   "/" + o.Database,
	}
	q := url.Values{}
	q.Set("sslmode", o.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Validate checks if the options are valid.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Host == "" {
		errs = append(errs, fmt.Errorf("postgres.host is required"))
	}
	if o.Database == "" {
		errs = append(errs, fmt.Errorf("postgres.database is required"))
	}
	switch {
	case o.Table == "":
		errs = append(errs, fmt.Errorf("postgres.table is required"))
	case !tablePattern.MatchString(o.Table):
		errs = append(errs, fmt.Errorf("postgres.table %q must be an identifier or schema.identifier", o.Table))
	}
	if o.Dim <= 0 {
		errs = append(errs, fmt.Errorf("postgres.dim must be positive"))
	}
	return errs
}

// Complete completes the options.
func (o *Options) Complete() error {
	if o.MaxOpenConnections <= 0 {
		o.MaxOpenConnections = 10
	}
	if o.MaxIdleConnections > o.MaxOpenConnections {
		o.MaxIdleConnections = o.MaxOpenConnections
	}
	return nil
}

// AddFlags adds flags for PostgreSQL options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "postgres."
	fs.StringVar(&o.Host, p+"host", o.Host, "PostgreSQL host")
	fs.IntVar(&o.Port, p+"port", o.Port, "PostgreSQL port")
	fs.StringVar(&o.Username, p+"username", o.Username, "PostgreSQL username")
	fs.StringVar(&o.Password, p+"password", o.Password, "PostgreSQL password")
	fs.StringVar(&o.Database, p+"database", o.Database, "PostgreSQL database")
	fs.StringVar(&o.SSLMode, p+"ssl-mode", o.SSLMode, "PostgreSQL SSL mode")
	fs.IntVar(&o.MaxIdleConnections, p+"max-idle-connections", o.MaxIdleConnections, "PostgreSQL max idle connections")
	fs.IntVar(&o.MaxOpenConnections, p+"max-open-connections", o.MaxOpenConnections, "PostgreSQL max open connections")
	fs.DurationVar(&o.MaxConnectionLifeTime, p+"max-connection-life-time", o.MaxConnectionLifeTime, "PostgreSQL max connection life time")
	fs.IntVar(&o.LogLevel, p+"log-level", o.LogLevel, "gorm log level (1 silent, 2 error, 3 warn, 4 info)")
	fs.StringVar(&o.Table, p+"table", o.Table, "Passage table name")
	fs.IntVar(&o.Dim, p+"dim", o.Dim, "Embedding vector dimension")
}
