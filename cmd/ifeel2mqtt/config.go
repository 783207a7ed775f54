package main

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

type cfgHub struct {
	Host     string `yaml:"host" env:"HOST"`
	Email    string `yaml:"email" env:"EMAIL"`
	Password string `yaml:"password" env:"PASSWORD"`

	PollInterval    time.Duration `yaml:"poll_interval" default:"2500ms" env:"POLL_INTERVAL"`
	PollTimeout     time.Duration `yaml:"poll_timeout" default:"60s" env:"POLL_TIMEOUT"`
	ReauthInterval  time.Duration `yaml:"reauth_interval" default:"10m" env:"REAUTH_INTERVAL"`
	RefreshInterval time.Duration `yaml:"state_refresh_interval" default:"1m" env:"STATE_REFRESH_INTERVAL"`
}

type cfgShutterOverride struct {
	Name string `yaml:"name"`

	Metadata map[string]interface{} `yaml:"metadata"`
}

type cfgMQTT struct {
	ClientID string `yaml:"client_id" default:"ifeel2mqtt" env:"CLIENT_ID"`
	Broker   string `yaml:"broker" default:"127.0.0.1:1883" env:"BROKER"`
	Username string `yaml:"username" env:"USERNAME"`
	Password string `yaml:"password" env:"PASSWORD"`
}

type cfgHASS struct {
	Enabled     bool   `yaml:"enabled" default:"true" env:"ENABLED"`
	TopicPrefix string `yaml:"topic_prefix" default:"homeassistant" env:"TOPIC_PREFIX"`
}

var Cfg struct {
	LogLevel string `yaml:"log_level" default:"info" env:"LOG_LEVEL"`

	Hub  cfgHub  `yaml:"hub" env:"HUB"`
	MQTT cfgMQTT `yaml:"mqtt" env:"MQTT"`
	HASS cfgHASS `yaml:"hass" env:"HASS"`

	Shutters []cfgShutterOverride `yaml:"shutters"`
}

var configLoader = aconfig.LoaderFor(&Cfg, aconfig.Config{
	EnvPrefix: "I2M",
})

func loadConfigFromYamlFile(filename string) {
	f, err := os.Open(filename)
	if err != nil {
		logrus.Error(err)
		return
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(&Cfg); err != nil {
		logrus.Fatal(err)
	}
}

func shutterMetadataByName(name string) map[string]interface{} {
	for _, s := range Cfg.Shutters {
		if s.Name == name {
			return s.Metadata
		}
	}

	return nil
}

func pahoOptsFromConfig() *paho.ClientOptions {
	return paho.NewClientOptions().
		SetClientID(Cfg.MQTT.ClientID).
		AddBroker(Cfg.MQTT.Broker).
		SetUsername(Cfg.MQTT.Username).
		SetPassword(Cfg.MQTT.Password).
		SetConnectTimeout(time.Second).
		SetPingTimeout(time.Second).
		SetWriteTimeout(time.Second).
		SetAutoReconnect(true)
}
