package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/ranmee/ifeel2mqtt/internal/hub"
	"github.com/ranmee/ifeel2mqtt/internal/mqtt"
	"github.com/ranmee/ifeel2mqtt/internal/shutter/driver/ifeel"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{
		DisableColors: false,
		FullTimestamp: true,
	})

	configPath := flag.String("config", "config.yaml", "config.yaml file path")
	flag.Parse()

	if err := configLoader.Load(); err != nil {
		logrus.Fatal(err)
	}
	loadConfigFromYamlFile(*configPath)

	level, err := logrus.ParseLevel(Cfg.LogLevel)
	if err != nil {
		logrus.Fatal(err)
	}
	logrus.SetLevel(level)

	ctx, cancel := context.WithCancel(context.Background())

	session, err := hub.NewSession()
	if err != nil {
		logrus.Fatal(err)
	}
	hubClient := hub.NewClient(session, Cfg.Hub.Host, Cfg.Hub.Email, Cfg.Hub.Password)

	// nothing can be discovered without a session, so the very first
	// login is the only fatal one; scheduled refreshes only log
	if err := hubClient.Authenticate(ctx); err != nil {
		logrus.Fatal(err)
	}
	go hubClient.KeepSessionAlive(ctx, Cfg.Hub.ReauthInterval)

	units, err := hubClient.Shutters(ctx)
	if err != nil {
		logrus.Fatal(err)
	}
	logrus.Infof("hub: discovered %d shutters", len(units))

	var bridges []*mqtt.Bridge
	cfg := pahoOptsFromConfig()
	cfg.OnConnect = func(m paho.Client) {
		logrus.Info("MQTT broker connected")
		subscribe(ctx, m, bridges)
	}
	cfg.OnConnectionLost = func(_ paho.Client, err error) {
		logrus.Errorf("MQTT broker connection lost: %s", err.Error())
	}

	m := paho.NewClient(cfg)
	if token := m.Connect(); token.Wait() && token.Error() != nil {
		logrus.Fatal(token.Error())
	}

	bridges = bridgesFromUnits(ctx, m, hubClient, units)
	subscribe(ctx, m, bridges)

	go refreshLoop(ctx, bridges)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)

	go func() {
		oscall := <-c
		logrus.Infof("system call: %+v", oscall)
		cancel()
	}()

	<-ctx.Done()

	cleanupTime := time.Second
	logrus.Infof("cleanups for %s...", cleanupTime.String())
	time.Sleep(cleanupTime)
}

func bridgesFromUnits(ctx context.Context, m paho.Client, hubClient *hub.Client, units []hub.Unit) (bridges []*mqtt.Bridge) {
	for _, u := range units {
		s := ifeel.NewHubShutter(ctx, hubClient, u.ID, u.Name, Cfg.Hub.PollInterval, Cfg.Hub.PollTimeout)
		bridge := mqtt.NewBridge(m, s)

		if metadata := shutterMetadataByName(u.Name); metadata != nil {
			if err := bridge.SetMetadata(metadata); err != nil {
				logrus.Error(err)
			}
		}

		bridges = append(bridges, bridge)
	}

	return bridges
}

func subscribe(ctx context.Context, m paho.Client, bridges []*mqtt.Bridge) {
	for _, bridge := range bridges {
		if Cfg.HASS.Enabled {
			entity := mqtt.NewHACoverFromMQTTBridge(bridge)
			if err := mqtt.PublishHAAutoDiscovery(m, Cfg.HASS.TopicPrefix, entity); err != nil {
				logrus.Fatal(err)
			}
		}

		if err := bridge.Subscribe(ctx); err != nil {
			logrus.Error(err)
		}
	}
}

func refreshLoop(ctx context.Context, bridges []*mqtt.Bridge) {
	ticker := time.NewTicker(Cfg.Hub.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, bridge := range bridges {
				bridge.Refresh(ctx)
			}
		}
	}
}
