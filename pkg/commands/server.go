package commands

import (
	"github.com/localdns/localdns/pkg/apiserver"
	"github.com/localdns/localdns/pkg/backend"
	"github.com/localdns/localdns/pkg/cache"
	"github.com/localdns/localdns/pkg/db"
	"github.com/localdns/localdns/pkg/dnsserver"
	"github.com/localdns/localdns/pkg/logworker"
	"github.com/localdns/localdns/pkg/upstream"
	"github.com/localdns/localdns/pkg/version"
	"github.com/rancher/wrangler/pkg/signals"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"gorm.io/gorm"
)

type serverCmd struct{}

func (s *serverCmd) Execute(c *cli.Context) error {
	ctx := signals.SetupSignalContext()

	log := logrus.WithField("command", "server")

	log.Infof("version: %v", version.Get())

	database, err := db.New(ctx, c.String("sql-dialect"), c.String("sql-dsn"), &gorm.Config{
		Logger: db.NewLogger(c.String("log-level")),
	})
	if err != nil {
		return err
	}

	recordCache, err := cache.New(database)
	if err != nil {
		return err
	}

	resolver := upstream.NewResolver(backend.UpstreamConfig(database))

	worker := logworker.New(database, logworker.DefaultCapacity)
	go worker.Run()
	go worker.StartRetentionSweeper(ctx.Done())
	defer worker.Close()

	handler := dnsserver.NewHandler(recordCache, resolver, worker)
	dnsServer := dnsserver.NewServer(c.String("dns-listen"), handler)

	go func() {
		if err := dnsServer.ListenAndServe(ctx); err != nil {
			log.WithError(err).Fatal("dns server failed")
		}
	}()

	back := backend.New(database, recordCache, resolver)

	apiServer := apiserver.NewAPIServer(ctx, log, c.Int("port"), c.String("api-token"))

	return apiServer.Start(back)
}

func serverCommand() *cli.Command {
	cmd := serverCmd{}

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "dns-listen",
			Usage:   "Address for the UDP DNS listener",
			EnvVars: []string{"LOCALDNS_DNS_LISTEN", "DNS_LISTEN"},
			Value:   "0.0.0.0:53",
		},
		&cli.IntFlag{
			Name:    "port",
			Usage:   "Port for the management HTTP server",
			EnvVars: []string{"LOCALDNS_PORT", "PORT"},
			Value:   3000,
		},
		&cli.StringFlag{
			Name:    "sql-dialect",
			Usage:   "The type of sql to use, sqlite or mysql",
			EnvVars: []string{"LOCALDNS_SQL_DIALECT", "SQL_DIALECT"},
			Value:   "sqlite",
		},
		&cli.StringFlag{
			Name:    "sql-dsn",
			Usage:   "The DSN to use to connect to",
			EnvVars: []string{"LOCALDNS_SQL_DSN", "SQL_DSN"},
			Value:   "file:localdns.sqlite?_pragma=foreign_keys(1)",
		},
		&cli.StringFlag{
			Name:    "api-token",
			Usage:   "Bearer token required by the management API (empty disables auth)",
			EnvVars: []string{"LOCALDNS_API_TOKEN", "API_TOKEN"},
		},
	}

	return &cli.Command{
		Name:   "server",
		Usage:  "run the dns and management servers",
		Action: cmd.Execute,
		Flags:  append(flags, GlobalFlags()...),
		Before: Before,
	}
}
