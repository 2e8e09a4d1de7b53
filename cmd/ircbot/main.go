// Command ircbot is an example bot: it connects, joins the configured
// channels, and echoes channel messages addressed to it. It reconnects
// with rate limiting when the connection drops.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/renet/ircx"
)

type config struct {
	Server   string   `yaml:"server"`
	TLS      bool     `yaml:"tls"`
	Nickname string   `yaml:"nickname"`
	Username string   `yaml:"username"`
	Realname string   `yaml:"realname"`
	Channels []string `yaml:"channels"`
	Charmap  string   `yaml:"charmap"`
	Debug    bool     `yaml:"debug"`
}

func loadConfig(path string) (config, error) {
	var cfg config
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Server == "" || cfg.Nickname == "" {
		return cfg, fmt.Errorf("%s: server and nickname are required", path)
	}
	return cfg, nil
}

func charmapByName(name string) (*charmap.Charmap, error) {
	switch strings.ToLower(name) {
	case "", "utf-8", "utf8":
		return nil, nil
	case "koi8-r":
		return charmap.KOI8R, nil
	case "cp1251", "windows-1251":
		return charmap.Windows1251, nil
	case "latin-1", "iso-8859-1":
		return charmap.ISO8859_1, nil
	}
	return nil, fmt.Errorf("unknown charmap %q", name)
}

func main() {
	configPath := flag.String("config", "ircbot.yml", "path to config file")
	flag.Parse()

	// Secrets come from the environment, not the config file.
	_ = godotenv.Load()
	password := os.Getenv("IRC_PASSWORD")

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		With().Timestamp().Logger()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	if cfg.Debug {
		log = log.Level(zerolog.DebugLevel)
	} else {
		log = log.Level(zerolog.InfoLevel)
	}
	cm, err := charmapByName(cfg.Charmap)
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	if err := run(log, cfg, cm, password); err != nil {
		log.Fatal().Err(err).Msg("exiting")
	}
}

func run(log zerolog.Logger, cfg config, cm *charmap.Charmap, password string) error {
	// At most one reconnect attempt per 30s, with a small initial burst.
	reconnects := rate.NewLimiter(rate.Every(30*time.Second), 3)

	for {
		if err := reconnects.Wait(context.Background()); err != nil {
			return err
		}
		err := session(log, cfg, cm, password)
		if err != nil {
			log.Error().Err(err).Msg("session ended")
			continue
		}
		return nil
	}
}

func session(log zerolog.Logger, cfg config, cm *charmap.Charmap, password string) error {
	opts := []ircx.Option{
		ircx.Logger(log),
		ircx.RequestCaps("multi-prefix", "account-notify"),
	}
	if cm != nil {
		opts = append(opts, ircx.Charmap(cm))
	}
	if cfg.TLS {
		opts = append(opts, ircx.TLSConfig(&tls.Config{}))
	}
	bot := ircx.New(opts...)
	defer bot.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := bot.Connect(ctx, cfg.Server); err != nil {
		return err
	}
	if err := bot.Register(ctx, ircx.Registration{
		Nickname: cfg.Nickname,
		Username: cfg.Username,
		Realname: cfg.Realname,
		Password: password,
	}); err != nil {
		return err
	}

	bot.HandleCommand("PRIVMSG", func(m ircx.Message) {
		target, text := m.Arg(0), m.Trailing()
		nick := bot.Nickname()
		if !strings.HasPrefix(text, nick+":") {
			return
		}
		reply := strings.TrimSpace(strings.TrimPrefix(text, nick+":"))
		if reply == "" {
			return
		}
		bot.Go(func() error {
			_, err := bot.Privmsg(target, m.Sender.Nick+": "+reply)
			return err
		})
	})

	for _, channel := range cfg.Channels {
		if _, err := bot.Join(ctx, channel); err != nil {
			log.Warn().Err(err).Str("channel", channel).Msg("join failed")
		}
	}

	return bot.WaitUntilDisconnected()
}
