package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/lotirium/blockchain-supply-chain-fintech/internal/api"
	"github.com/lotirium/blockchain-supply-chain-fintech/internal/auth"
	"github.com/lotirium/blockchain-supply-chain-fintech/internal/credentials"
	"github.com/lotirium/blockchain-supply-chain-fintech/internal/dispatch"
	"github.com/lotirium/blockchain-supply-chain-fintech/internal/domain"
	"github.com/lotirium/blockchain-supply-chain-fintech/internal/orders"
	"github.com/lotirium/blockchain-supply-chain-fintech/internal/realtime"
	"github.com/lotirium/blockchain-supply-chain-fintech/internal/retry"
	"github.com/lotirium/blockchain-supply-chain-fintech/pkg/config"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// app owns every long-lived service. Services are constructed once and
// passed explicitly; nothing here is a package-level singleton.
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	dispatcher *dispatch.Serial
	store      *credentials.Store
	client     *api.Client
	manager    *auth.Manager
	channel    *realtime.Channel
	sync       *orders.Synchronizer
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	credPath := cfg.CredentialsFile
	if credPath == "" {
		credPath, err = credentials.DefaultPath()
		if err != nil {
			return nil, err
		}
	}

	dispatcher := dispatch.NewSerial()
	store := credentials.NewStore(credPath, logger)
	exec := retry.NewExecutor(logger)
	client := api.NewClient(cfg.APIBaseURL, cfg.HTTPTimeout, store, exec, logger)
	manager := auth.NewManager(client, store, dispatcher, logger)
	channel := realtime.NewChannel(cfg.WebSocketURL, dispatcher, logger)
	sync := orders.NewSynchronizer(client, dispatcher, logger)

	// Auth transitions drive the socket lifecycle.
	manager.AddListener(func(authenticated bool, token string) {
		if authenticated && token != "" {
			if err := channel.Connect(token); err != nil {
				return
			}
			channel.AddOrderUpdateListener(sync.OnOrderUpdate)
		} else {
			channel.Disconnect()
		}
	})

	return &app{
		cfg:        cfg,
		logger:     logger,
		dispatcher: dispatcher,
		store:      store,
		client:     client,
		manager:    manager,
		channel:    channel,
		sync:       sync,
	}, nil
}

func (a *app) close() {
	a.channel.Disconnect()
	a.dispatcher.Close()
	a.logger.Sync()
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	a, err := newApp()
	if err != nil {
		log.Fatal("Failed to initialize:", err)
	}
	defer a.close()

	cliApp := &cli.App{
		Name:  "shipmentctl",
		Usage: "shipment platform client",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "authenticate and store the session",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "password", Required: true},
				},
				Action: func(c *cli.Context) error {
					resp, err := a.manager.Login(c.Context, c.String("email"), c.String("password"))
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}
					fmt.Printf("Logged in as %s (%s)\n", resp.Username, resp.Role)
					return nil
				},
			},
			{
				Name:  "register",
				Usage: "create an account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "password", Required: true},
					&cli.StringFlag{Name: "username", Required: true},
					&cli.StringFlag{Name: "first-name", Required: true},
					&cli.StringFlag{Name: "last-name", Required: true},
					&cli.StringFlag{Name: "type", Value: "buyer", Usage: "buyer or seller"},
					&cli.StringFlag{Name: "store-name"},
					&cli.StringFlag{Name: "store-description"},
					&cli.StringFlag{Name: "business-phone"},
					&cli.StringFlag{Name: "business-address"},
				},
				Action: func(c *cli.Context) error {
					in := auth.RegisterInput{
						Email:     c.String("email"),
						Password:  c.String("password"),
						Username:  c.String("username"),
						FirstName: c.String("first-name"),
						LastName:  c.String("last-name"),
						UserType:  c.String("type"),
					}
					if c.String("type") == "seller" {
						in.Store = &auth.StoreInput{
							Name:            c.String("store-name"),
							Description:     c.String("store-description"),
							BusinessPhone:   c.String("business-phone"),
							BusinessAddress: c.String("business-address"),
						}
					}
					resp, err := a.manager.Register(c.Context, in)
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}
					fmt.Printf("Registered %s (%s)\n", resp.Username, resp.Role)
					return nil
				},
			},
			{
				Name:  "logout",
				Usage: "clear the local session",
				Action: func(c *cli.Context) error {
					a.manager.Logout()
					fmt.Println("Logged out")
					return nil
				},
			},
			{
				Name:  "profile",
				Usage: "show or update the profile",
				Subcommands: []*cli.Command{
					{
						Name: "get",
						Action: func(c *cli.Context) error {
							resp, err := a.manager.GetProfile(c.Context)
							if err != nil {
								return cli.Exit(err.Error(), 1)
							}
							return printJSON(resp)
						},
					},
					{
						Name: "update",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "first-name", Required: true},
							&cli.StringFlag{Name: "last-name", Required: true},
							&cli.StringFlag{Name: "email", Required: true},
							&cli.StringFlag{Name: "username", Required: true},
						},
						Action: func(c *cli.Context) error {
							resp, err := a.manager.UpdateProfile(c.Context,
								c.String("first-name"), c.String("last-name"),
								c.String("email"), c.String("username"))
							if err != nil {
								return cli.Exit(err.Error(), 1)
							}
							return printJSON(resp)
						},
					},
				},
			},
			{
				Name:  "orders",
				Usage: "browse and watch orders",
				Subcommands: []*cli.Command{
					{
						Name: "list",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "status", Usage: "client-side status filter"},
						},
						Action: func(c *cli.Context) error {
							list, err := a.client.GetUserOrders(c.Context)
							if err != nil {
								return cli.Exit(err.Error(), 1)
							}
							status := domain.OrderStatus(c.String("status"))
							if status != "" {
								filtered := list[:0]
								for _, o := range list {
									if o.Status == status {
										filtered = append(filtered, o)
									}
								}
								list = filtered
							}
							return printJSON(list)
						},
					},
					{
						Name: "get",
						Action: func(c *cli.Context) error {
							order, err := a.client.GetOrder(c.Context, c.Args().First())
							if err != nil {
								return cli.Exit(err.Error(), 1)
							}
							return printJSON(order)
						},
					},
					{
						Name:      "set-status",
						ArgsUsage: "<order-id> <status>",
						Action: func(c *cli.Context) error {
							order, err := a.client.UpdateOrderStatus(c.Context,
								c.Args().Get(0), domain.OrderStatus(c.Args().Get(1)))
							if err != nil {
								return cli.Exit(err.Error(), 1)
							}
							return printJSON(order)
						},
					},
					{
						Name:  "watch",
						Usage: "refresh and stream live status updates",
						Action: func(c *cli.Context) error {
							a.sync.Subscribe(orders.Observer{
								OnOrders: func(list []domain.Order) {
									for _, o := range list {
										fmt.Printf("%s  %-12s %s\n", o.ID, o.Status, o.TotalFiatAmount)
									}
									fmt.Println("---")
								},
								OnError: func(msg string) {
									fmt.Fprintln(os.Stderr, msg)
								},
							})
							a.sync.Refresh(c.Context)

							quit := make(chan os.Signal, 1)
							signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
							<-quit
							return nil
						},
					},
				},
			},
			{
				Name:      "verify",
				Usage:     "verify a scanned QR payload",
				ArgsUsage: "<qr-data>",
				Action: func(c *cli.Context) error {
					resp, err := a.client.VerifyQRCode(c.Context, c.Args().First())
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}
					if !resp.Success {
						return cli.Exit(resp.Message, 1)
					}
					return printJSON(resp.Data.VerificationResult)
				},
			},
		},
	}

	if err := cliApp.RunContext(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
