// internal/config/model.go
//
// Typed configuration model for reveal.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from its overlay layers:
//
//   • optional `conf/.env`                     – dotenv values,
//   • optional `conf/global.yaml`              – primary static file,
//   • `REVEAL_`-prefixed environment overrides – highest precedence,
//   • legacy deployment variables (PORT, NODE_ENV, TELEGRAM_BOT_TOKEN, …).
//
// Any value whose string begins with the prefix `vault:` is resolved
// through the Vault client *before* unmarshalling, so the model never
// stores Vault URIs, only plain strings.
//
// Validation happens immediately after unmarshal; the app fails fast if
// required fields are missing.
//
// Notes
// -----
//   • Struct tags use `koanf:"…"`, not `yaml:"…"`.  Koanf ignores `yaml`
//     tags unless configured otherwise.
//   • The `Paths` block is filled at runtime; YAML must not try to set it.
//   • Oxford commas, two spaces after periods.  No em-dash.

package config

import "time"

//
// App section
//

// App holds process-wide switches.
type App struct {
	Env string `koanf:"env" validate:"oneof=development production test"`
}

// Production reports whether Env is "production".
func (a App) Production() bool { return a.Env == "production" }

//
// HTTP section
//

// HTTP holds web-server tunables.
type HTTP struct {
	ListenAddr string `koanf:"listen_addr" validate:"required,hostname_port"`
	ForceHTTPS bool   `koanf:"force_https"`
	StaticDir  string `koanf:"static_dir"`
}

//
// Log section
//

// Log controls the zap logger.
type Log struct {
	Dir   string `koanf:"dir"`
	Level string `koanf:"level" validate:"oneof=debug info warn error"`
}

//
// Store section
//

// Store selects and tunes the Record Store backend.
//
// Backend "auto" picks mongo when MongoURI is set, then mysql when
// MySQLDSN is set, else memory.
type Store struct {
	Backend       string        `koanf:"backend"        validate:"oneof=auto memory mysql mongo"`
	MySQLDSN      string        `koanf:"mysql_dsn"      validate:"required_if=Backend mysql"`
	MongoURI      string        `koanf:"mongo_uri"      validate:"required_if=Backend mongo,mongo_uri"`
	MongoDatabase string        `koanf:"mongo_database" validate:"required"`
	ProbeInterval time.Duration `koanf:"probe_interval" validate:"gt=0"`
	OpTimeout     time.Duration `koanf:"op_timeout"     validate:"gt=0"`
	MaxOpenConns  int           `koanf:"max_open_conns" validate:"gte=1"`
}

// Resolved returns the concrete backend name for Backend.
func (s Store) Resolved() string {
	if s.Backend != "auto" && s.Backend != "" {
		return s.Backend
	}
	switch {
	case s.MongoURI != "":
		return "mongo"
	case s.MySQLDSN != "":
		return "mysql"
	}
	return "memory"
}

//
// Gate section
//

// Gate configures countdown semantics.
type Gate struct {
	// Timezone interprets /settime input.  IANA name.
	Timezone string `koanf:"timezone" validate:"required,iana_tz"`
}

//
// Telegram section
//

// Telegram configures the chat bot.  The token is usually a vault: ref.
type Telegram struct {
	Token          string        `koanf:"token"            validate:"required_if=Polling true"`
	Polling        bool          `koanf:"polling"`
	AllowedUserIDs []int64       `koanf:"allowed_user_ids"`
	NotifyChatIDs  []int64       `koanf:"notify_chat_ids"`
	Heartbeat      time.Duration `koanf:"heartbeat" validate:"gt=0"`
}

// Enabled reports whether the bot should poll.
func (t Telegram) Enabled() bool { return t.Token != "" && t.Polling }

//
// Notify section
//

// Notify tunes the notification dispatcher.
type Notify struct {
	QueueSize   int           `koanf:"queue_size"   validate:"gte=1"`
	SendTimeout time.Duration `koanf:"send_timeout" validate:"gt=0"`
}

//
// Visitor section
//

// Visitor tunes visitor tracking.
type Visitor struct {
	DedupeWindow time.Duration `koanf:"dedupe_window"`
	CacheSize    int           `koanf:"cache_size" validate:"gte=1"`
	GeoIPDB      string        `koanf:"geoip_db"`
}

//
// Paths section (runtime only)
//

// Paths is resolved at runtime, never set in YAML or env.  The loader
// discovers `Root` (repo root or REVEAL_ROOT override) so later code can
// build absolute file paths.
type Paths struct {
	Root string
}

//
// Root aggregate
//

// Config is the immutable aggregate returned by Load().
type Config struct {
	App      App      `koanf:"app"`
	HTTP     HTTP     `koanf:"http"`
	Log      Log      `koanf:"log"`
	Store    Store    `koanf:"store"`
	Gate     Gate     `koanf:"gate"`
	Telegram Telegram `koanf:"telegram"`
	Notify   Notify   `koanf:"notify"`
	Visitor  Visitor  `koanf:"visitor"`
	Paths    Paths    `koanf:"-"`
}
