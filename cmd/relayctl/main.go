package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
)

func clientFrom(c *cli.Context) (*relayClient, error) {
	return newRelayClient(c.String("server"), c.String("ws-path"), c.Duration("timeout"))
}

// printResponse pretty-prints a body, green for 2xx and red otherwise.
func printResponse(res *apiResponse) error {
	b, err := json.MarshalIndent(res.Body, "", "  ")
	if err != nil {
		return err
	}
	if res.Status >= 200 && res.Status < 300 {
		color.Green("✅ %d", res.Status)
	} else {
		color.Red("❌ %d", res.Status)
	}
	fmt.Println(string(b))
	if res.Status >= 400 {
		return cli.Exit("", 1)
	}
	return nil
}

func getCommand(name, usage, path string) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Action: func(c *cli.Context) error {
			rc, err := clientFrom(c)
			if err != nil {
				return err
			}
			res, err := rc.get(c.Context, path)
			if err != nil {
				return err
			}
			return printResponse(res)
		},
	}
}

func mainSlotCommand(name, usage, path string) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "instance", Aliases: []string{"i"}, Usage: "instance id (X-Instance-ID)"},
		},
		Action: func(c *cli.Context) error {
			rc, err := clientFrom(c)
			if err != nil {
				return err
			}
			headers := map[string]string{}
			if id := c.String("instance"); id != "" {
				headers["X-Instance-ID"] = id
			}
			res, err := rc.do(c.Context, http.MethodPost, path, headers, nil)
			if err != nil {
				return err
			}
			return printResponse(res)
		},
	}
}

func main() {
	app := &cli.App{
		Name:  "relayctl",
		Usage: "Inspect and drive an eScoresheet match relay",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Value:   "http://localhost:8080",
				Usage:   "relay base URL",
				EnvVars: []string{"RELAY_URL"},
			},
			&cli.StringFlag{
				Name:    "ws-path",
				Value:   "/ws",
				Usage:   "websocket path on the relay",
				EnvVars: []string{"WS_PATH"},
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 10 * time.Second,
				Usage: "HTTP request timeout",
			},
		},
		Commands: []*cli.Command{
			getCommand("status", "Show relay status and URLs", "/api/server/status"),
			getCommand("connections", "Show connection and subscription counts", "/api/server/connections"),
			getCommand("list", "Show the match open for referee connection", "/api/match/list"),
			mainSlotCommand("claim", "Claim the main-instance slot", "/api/server/register-main"),
			mainSlotCommand("release", "Release the main-instance slot", "/api/server/unregister-main"),
			{
				Name:  "validate-pin",
				Usage: "Resolve a PIN to its match",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "pin", Required: true},
					&cli.StringFlag{Name: "type", Value: "referee", Usage: "referee, homeTeam or awayTeam"},
				},
				Action: func(c *cli.Context) error {
					rc, err := clientFrom(c)
					if err != nil {
						return err
					}
					res, err := rc.do(c.Context, http.MethodPost, "/api/match/validate-pin", nil,
						map[string]string{"pin": c.String("pin"), "type": c.String("type")})
					if err != nil {
						return err
					}
					return printResponse(res)
				},
			},
			{
				Name:  "match",
				Usage: "Fetch full match data by id or game number",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id"},
					&cli.StringFlag{Name: "game-number"},
				},
				Action: func(c *cli.Context) error {
					rc, err := clientFrom(c)
					if err != nil {
						return err
					}
					var path string
					switch {
					case c.String("id") != "":
						path = "/api/match/" + url.PathEscape(c.String("id"))
					case c.String("game-number") != "":
						path = "/api/match/by-game-number?gameNumber=" + url.QueryEscape(c.String("game-number"))
					default:
						return cli.Exit("one of --id or --game-number is required", 2)
					}
					res, err := rc.get(c.Context, path)
					if err != nil {
						return err
					}
					return printResponse(res)
				},
			},
			{
				Name:  "watch",
				Usage: "Subscribe to a match and print every frame",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "match", Aliases: []string{"m"}, Required: true},
				},
				Action: func(c *cli.Context) error {
					rc, err := clientFrom(c)
					if err != nil {
						return err
					}
					ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
					defer stop()

					color.Cyan("👀 Watching match %s on %s (Ctrl+C to stop)", c.String("match"), rc.wsURL())
					err = rc.watch(ctx, c.String("match"), func(msg map[string]any) {
						b, _ := json.Marshal(msg)
						color.New(color.FgYellow).Printf("%s ", time.Now().Format("15:04:05"))
						fmt.Println(string(b))
					})
					if err != nil {
						return err
					}
					color.Yellow("\n🛑 Stopped watching")
					return nil
				},
			},
			{
				Name:  "publish",
				Usage: "Seed the relay with match data from a JSON file",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "match", Aliases: []string{"m"}, Required: true},
					&cli.PathFlag{Name: "file", Aliases: []string{"f"}, Required: true, Usage: "JSON object: {match, homeTeam, awayTeam, ...}"},
				},
				Action: func(c *cli.Context) error {
					rc, err := clientFrom(c)
					if err != nil {
						return err
					}
					raw, err := os.ReadFile(c.Path("file"))
					if err != nil {
						return err
					}
					if !json.Valid(raw) {
						return cli.Exit(fmt.Sprintf("%s is not valid JSON", c.Path("file")), 2)
					}
					ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
					defer cancel()
					if err := rc.publish(ctx, c.String("match"), raw); err != nil {
						color.Red("❌ Publish failed: %v", err)
						return cli.Exit("", 1)
					}
					color.Green("✅ Published match %s", c.String("match"))
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
