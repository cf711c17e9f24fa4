// Команда token выпускает и проверяет JWT для локальной разработки.
package main

import (
	"fmt"
	"os"
	"time"

	"habitTracker/internal/auth"
	"habitTracker/internal/config"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"
)

type Context struct {
	Config *config.Config
}

type IssueCmd struct {
	User string        `help:"UUID пользователя; без флага генерируется новый." short:"u"`
	TTL  time.Duration `help:"Время жизни токена; 0 - из конфига." default:"0s"`
}

func (c *IssueCmd) Run(ctx *Context) error {
	userID := uuid.New()
	if c.User != "" {
		parsed, err := uuid.Parse(c.User)
		if err != nil {
			return fmt.Errorf("неверный uuid пользователя: %w", err)
		}
		userID = parsed
	}

	lifetime := ctx.Config.Auth.TokenTTL
	if c.TTL > 0 {
		lifetime = c.TTL
	}
	signer, err := auth.NewSigner(ctx.Config.Auth.JWTSecret, lifetime)
	if err != nil {
		return err
	}
	token, err := signer.Issue(userID)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "user: %s, истекает: %s\n", userID, time.Now().Add(lifetime).Format(time.RFC3339))
	fmt.Println(token)
	return nil
}

type VerifyCmd struct {
	Token string `arg:"" help:"Токен для проверки."`
}

func (c *VerifyCmd) Run(ctx *Context) error {
	signer, err := auth.NewSigner(ctx.Config.Auth.JWTSecret, ctx.Config.Auth.TokenTTL)
	if err != nil {
		return err
	}
	userID, err := signer.Parse(c.Token)
	if err != nil {
		return err
	}
	fmt.Println(userID)
	return nil
}

var CLI struct {
	Config string `help:"Путь к config.yml." type:"path" default:"config.yml"`

	Issue  IssueCmd  `cmd:"" help:"Выпустить токен." default:"withargs"`
	Verify VerifyCmd `cmd:"" help:"Проверить токен и вывести пользователя."`
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name("token"),
		kong.Description("JWT для локальной разработки habit tracker"),
		kong.UsageOnError(),
	)

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := kctx.Run(&Context{Config: cfg}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
