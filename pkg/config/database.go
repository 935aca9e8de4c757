// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

// DatabaseConfig describes a SQL database that stores content records.
type DatabaseConfig struct {
	Driver string `yaml:"driver" json:"driver" jsonschema:"title=Driver,enum=postgres,enum=mysql,enum=sqlite,enum=sqlite3,default=sqlite"`

	// DSN is used verbatim when set and overrides the connection fields below.
	DSN string `yaml:"dsn,omitempty" json:"dsn,omitempty" jsonschema:"title=DSN"`

	Host     string `yaml:"host,omitempty" json:"host,omitempty"`
	Port     int    `yaml:"port,omitempty" json:"port,omitempty"`
	Database string `yaml:"database,omitempty" json:"database,omitempty" jsonschema:"description=Database name or SQLite file path"`
	Username string `yaml:"username,omitempty" json:"username,omitempty"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`
	SSLMode  string `yaml:"ssl_mode,omitempty" json:"ssl_mode,omitempty"`

	// Params are appended to the connection string as driver options.
	Params map[string]string `yaml:"params,omitempty" json:"params,omitempty"`

	MaxConns        int           `yaml:"max_conns,omitempty" json:"max_conns,omitempty" jsonschema:"minimum=1,default=25"`
	MaxIdle         int           `yaml:"max_idle,omitempty" json:"max_idle,omitempty" jsonschema:"minimum=1,default=5"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime,omitempty" json:"conn_max_lifetime,omitempty"`
}

// SetDefaults applies default values to the database config.
func (c *DatabaseConfig) SetDefaults() {
	if c.Driver == "sqlite3" {
		c.Driver = DriverSQLite
	}
	if c.Driver == "" {
		c.Driver = DriverSQLite
	}
	if c.MaxConns == 0 {
		c.MaxConns = 25
	}
	if c.MaxIdle == 0 {
		c.MaxIdle = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = time.Hour
	}

	switch c.Driver {
	case DriverPostgres:
		if c.Port == 0 {
			c.Port = 5432
		}
		if c.SSLMode == "" {
			c.SSLMode = "disable"
		}
	case DriverMySQL:
		if c.Port == 0 {
			c.Port = 3306
		}
	}
}

// Validate checks the database configuration and reports every problem.
func (c *DatabaseConfig) Validate() error {
	var errs []error

	switch c.Driver {
	case DriverPostgres, DriverMySQL, DriverSQLite, "sqlite3":
	case "":
		errs = append(errs, errors.New("driver is required"))
	default:
		errs = append(errs, fmt.Errorf("invalid driver %q (valid: postgres, mysql, sqlite)", c.Driver))
	}

	if c.DSN == "" {
		if c.Database == "" {
			errs = append(errs, errors.New("database is required"))
		}
		if c.IsNetworked() && c.Host == "" {
			errs = append(errs, fmt.Errorf("host is required for %s", c.Driver))
		}
	}
	if c.MaxConns < 0 {
		errs = append(errs, errors.New("max_conns must be non-negative"))
	}
	if c.MaxIdle < 0 {
		errs = append(errs, errors.New("max_idle must be non-negative"))
	}

	return errors.Join(errs...)
}

// IsNetworked reports whether the driver talks to a database server.
func (c *DatabaseConfig) IsNetworked() bool {
	return c.Driver == DriverPostgres || c.Driver == DriverMySQL
}

// ConnString returns the connection string handed to sql.Open.
func (c *DatabaseConfig) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}

	switch c.Driver {
	case DriverPostgres:
		q := url.Values{}
		if c.SSLMode != "" {
			q.Set("sslmode", c.SSLMode)
		}
		for k, v := range c.Params {
			q.Set(k, v)
		}
		u := url.URL{
			Scheme:   "postgres",
			Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
			Path:     "/" + c.Database,
			RawQuery: q.Encode(),
		}
		if c.Username != "" {
			u.User = url.UserPassword(c.Username, c.Password)
		}
		return u.String()

	case DriverMySQL:
		mc := mysql.NewConfig()
		mc.User = c.Username
		mc.Passwd = c.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
		mc.DBName = c.Database
		if len(c.Params) > 0 {
			mc.Params = make(map[string]string, len(c.Params))
			for k, v := range c.Params {
				mc.Params[k] = v
			}
		}
		return mc.FormatDSN()

	case DriverSQLite, "sqlite3":
		// WAL and a busy timeout let concurrent readers coexist with the
		// single writer connection.
		q := url.Values{}
		q.Set("_busy_timeout", "10000")
		q.Set("_journal_mode", "WAL")
		for k, v := range c.Params {
			q.Set(k, v)
		}
		return c.Database + "?" + q.Encode()

	default:
		return ""
	}
}

// DriverName returns the name registered with database/sql.
func (c *DatabaseConfig) DriverName() string {
	if c.Driver == DriverSQLite {
		return "sqlite3"
	}
	return c.Driver
}

// Dialect returns the SQL dialect used to build queries.
func (c *DatabaseConfig) Dialect() string {
	if c.Driver == "sqlite3" {
		return DriverSQLite
	}
	return c.Driver
}
