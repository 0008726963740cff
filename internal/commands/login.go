package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"stairsync/internal/api"
	"stairsync/internal/auth"
	"stairsync/internal/config"
)

type loginCmd struct{}

func (loginCmd) Name() string        { return "login" }
func (loginCmd) Description() string { return "Authenticate against the reporting server" }
func (loginCmd) Usage() string       { return "login <user> <password>" }

func (loginCmd) Run(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) != 2 {
		return ErrUsage
	}

	body, err := json.Marshal(map[string]string{"login": args[0], "password": args[1]})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		cfg.ServerURL+"/api/user/login", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login failed: server status %d: %s", resp.StatusCode, api.ReadBody(resp))
	}

	var lr struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("decode login response: %w", err)
	}
	if lr.Token == "" {
		return fmt.Errorf("login response missing token")
	}

	store := auth.FileTokenStore{Path: cfg.TokenFile}
	if err := store.Save(lr.Token); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	fmt.Fprintln(Out, "Logged in, token stored.")
	return nil
}

func init() { RegisterCmd(loginCmd{}) }
