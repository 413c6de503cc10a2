package configure

import (
	"bytes"
	"encoding/json"
	"strings"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/kr/pretty"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type ServerCfg struct {
	Level           string `mapstructure:"level"`
	ConfigFile      string `mapstructure:"config_file"`
	RedisURI        string `mapstructure:"redis_uri"`
	MongoURI        string `mapstructure:"mongo_uri"`
	MongoDB         string `mapstructure:"mongo_db"`
	ListenerNetwork string `mapstructure:"listener_network"`
	ListenerAddress string `mapstructure:"listener_address"`
	EncryptionKey   string `mapstructure:"encryption_key"`
	AdminKey        string `mapstructure:"admin_key"`
	FrontendURL     string `mapstructure:"frontend_url"`
	TickInterval    int    `mapstructure:"tick_interval"`
	ExitCode        int    `mapstructure:"exit_code"`
}

// default config
var defaultConf = ServerCfg{
	ConfigFile:      "config.yaml",
	ListenerNetwork: "tcp",
	ListenerAddress: ":3000",
	FrontendURL:     "http://localhost:5173",
	TickInterval:    60,
}

var Config = viper.New()

func initLog() {
	if l, err := log.ParseLevel(Config.GetString("level")); err == nil {
		log.SetLevel(l)
	}
	log.SetFormatter(&nested.Formatter{
		HideKeys:    true,
		FieldsOrder: []string{"component", "category"},
	})
}

func checkErr(err error) {
	if err != nil {
		panic(err)
	}
}

// Init merges defaults, flags, the config file and environment into Config.
// Must be called once, before any package that reads Config is set up.
func Init() {
	// Default config
	b, _ := json.Marshal(defaultConf)
	defaultConfig := bytes.NewReader(b)
	viper.SetConfigType("json")
	checkErr(viper.ReadConfig(defaultConfig))
	checkErr(Config.MergeConfigMap(viper.AllSettings()))

	// Flags
	pflag.String("config_file", "config.yaml", "configure filename")
	pflag.String("level", "info", "Log level")
	pflag.String("redis_uri", "", "Address for the redis server.")
	pflag.String("mongo_uri", "", "Address for the mongodb server.")
	pflag.String("mongo_db", "", "Database for the mongodb connection.")
	pflag.String("listener_network", "tcp", "Network type for the http listener.")
	pflag.String("listener_address", ":3000", "Bind address for the http listener.")
	pflag.String("encryption_key", "", "Hex encoded 32 byte key used to encrypt voter names at rest.")
	pflag.String("admin_key", "", "Shared key required for admin operations.")
	pflag.String("frontend_url", "", "Base url used when building voting links.")
	pflag.Int("tick_interval", 60, "Seconds between election lifecycle evaluations.")
	pflag.Int("exit_code", 0, "Status code for successful and graceful shutdown, [0-125].")
	pflag.Parse()
	checkErr(Config.BindPFlags(pflag.CommandLine))

	// File
	Config.SetConfigFile(Config.GetString("config_file"))
	Config.AddConfigPath(".")
	err := Config.ReadInConfig()
	if err != nil {
		log.Warning(err)
		log.Info("Using default config")
	} else {
		checkErr(Config.MergeInConfig())
	}

	// Environment
	replacer := strings.NewReplacer(".", "_")
	Config.SetEnvKeyReplacer(replacer)
	Config.AllowEmptyEnv(true)
	Config.AutomaticEnv()

	// Log
	initLog()

	// Print final config, secrets redacted
	c := ServerCfg{}
	checkErr(Config.Unmarshal(&c))
	if c.EncryptionKey != "" {
		c.EncryptionKey = "<redacted>"
	}
	if c.AdminKey != "" {
		c.AdminKey = "<redacted>"
	}
	log.Debugf("Current configurations: \n%# v", pretty.Formatter(c))
}
