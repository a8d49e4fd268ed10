package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/go-webauthn/webauthn/protocol"

	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/api"
	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/auth"
	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/config"
	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/crypto"
	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/idp"
	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/log"
	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/orchestrator"
	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/relay"
	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/session"
	"github.com/yumachin2003/shinshu-fesnav-sub000/internal/storage"
)

var BuildVersion = "dev"

func generateDefaultConfig(path string) error {
	defaultConfig := map[string]any{
		"app": map[string]any{
			"backendUrl":      "https://fesnav.yourdomain.com/api",
			"origin":          "https://fesnav.yourdomain.com",
			"callbackPath":    "/login/callback",
			"sessionFile":     "~/.config/fesnav/session",
			"encryptionKey":   map[string]string{"$env": "FESNAV_ENCRYPTION_KEY"},
			"stateSigningKey": map[string]string{"$env": "FESNAV_STATE_SIGNING_KEY"},
		},
		"providers": map[string]any{
			"google": map[string]any{
				"kind":        "local",
				"clientId":    map[string]string{"$env": "GOOGLE_CLIENT_ID"},
				"redirectUri": "https://fesnav.yourdomain.com/login/callback",
			},
			"line": map[string]any{
				"kind": "backend",
			},
		},
	}

	data, err := json.MarshalIndent(defaultConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// terminalAuthenticator: no platform credential capability in a terminal,
// so passkey ceremonies fail fast as unsupported.
type terminalAuthenticator struct{}

func (terminalAuthenticator) Available() bool { return false }

func (terminalAuthenticator) Create(context.Context, *protocol.CredentialCreation) (json.RawMessage, error) {
	return nil, errors.New("no authenticator")
}

func (terminalAuthenticator) Get(context.Context, *protocol.CredentialAssertion) (json.RawMessage, error) {
	return nil, errors.New("no authenticator")
}

// noPopupFactory: the CLI has no window system for the popup relay
type noPopupFactory struct{}

func (noPopupFactory) Open(url, name, features string) (relay.Window, error) {
	return nil, fmt.Errorf("popup login is not available from the terminal, open %s in a browser", url)
}

func buildStore(cfg config.Config) (*session.Store, error) {
	if cfg.App.SessionFile == "" {
		return session.NewStore(storage.NewMemoryStore()), nil
	}
	encryptor, err := crypto.NewEncryptor([]byte(cfg.App.EncryptionKey))
	if err != nil {
		return nil, fmt.Errorf("bad encryption key: %w", err)
	}
	return session.NewStore(storage.NewFileStore(cfg.App.SessionFile, encryptor)), nil
}

func buildOrchestrator(cfg config.Config, store *session.Store, client *api.Client) (*orchestrator.Orchestrator, error) {
	providers := make(map[string]idp.Provider, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		provider, err := idp.NewProvider(name, pc, client)
		if err != nil {
			return nil, err
		}
		providers[name] = provider
	}

	popupRelay := relay.New(cfg.App.Origin, store, noPopupFactory{},
		relay.NewStateCodec([]byte(cfg.App.StateSigningKey)))

	return orchestrator.New(store, client, terminalAuthenticator{}, popupRelay, providers,
		orchestrator.WithSuccessCallback(func(sess *session.Session) {
			fmt.Printf("Logged in as %s\n", sess.User.Username)
		})), nil
}

func runLogin(ctx context.Context, orch *orchestrator.Orchestrator, username string) error {
	reader := bufio.NewReader(os.Stdin)
	if username == "" {
		fmt.Print("Username: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read username: %w", err)
		}
		username = strings.TrimSpace(line)
	}

	fmt.Print("Password: ")
	line, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")

	if err := orch.SetIdentifier(username); err != nil {
		return err
	}
	if err := orch.SelectMethod(auth.MethodPassword); err != nil {
		return err
	}
	if err := orch.SubmitPassword(ctx, password); err != nil {
		return err
	}
	if orch.Phase() != orchestrator.PhaseCompleted {
		return errors.New(orch.LastMessage())
	}
	return nil
}

func runStatus(ctx context.Context, store *session.Store) {
	sess := store.Load(ctx)
	if sess == nil {
		fmt.Println("Not logged in")
		return
	}
	role := "member"
	if sess.User.IsAdmin {
		role = "admin"
	}
	fmt.Printf("Logged in as %s (%s) since %s\n",
		sess.User.Username, role, sess.EstablishedAt.Format("2006-01-02 15:04:05"))
}

func main() {
	conf := flag.String("config", "", "path to config file (required)")
	version := flag.Bool("version", false, "print version and exit")
	help := flag.Bool("help", false, "print help and exit")
	configInit := flag.String("config-init", "", "generate default config file at specified path")
	flag.Parse()

	if *help {
		flag.Usage()
		fmt.Fprintf(os.Stderr, "\nCommands:\n")
		fmt.Fprintf(os.Stderr, "  login [username]   log in with username and password\n")
		fmt.Fprintf(os.Stderr, "  status             show the current session\n")
		fmt.Fprintf(os.Stderr, "  logout             clear the current session\n")
		return
	}
	if *version {
		fmt.Println(BuildVersion)
		return
	}
	if *configInit != "" {
		if err := generateDefaultConfig(*configInit); err != nil {
			log.LogError("Failed to generate config: %v", err)
			os.Exit(1)
		}
		fmt.Printf("Generated default config at: %s\n", *configInit)
		return
	}

	if *conf == "" {
		fmt.Fprintf(os.Stderr, "Error: -config flag is required\n")
		fmt.Fprintf(os.Stderr, "Run with -help for usage information\n")
		os.Exit(1)
	}

	cfg, err := config.Load(*conf)
	if err != nil {
		log.LogError("Failed to load config: %v", err)
		os.Exit(1)
	}

	store, err := buildStore(cfg)
	if err != nil {
		log.LogError("Failed to open session storage: %v", err)
		os.Exit(1)
	}
	client := api.NewClient(cfg.App.BackendURL)

	ctx := context.Background()
	command := flag.Arg(0)
	switch command {
	case "login":
		orch, err := buildOrchestrator(cfg, store, client)
		if err != nil {
			log.LogError("Failed to initialize: %v", err)
			os.Exit(1)
		}
		if err := runLogin(ctx, orch, flag.Arg(1)); err != nil {
			fmt.Fprintf(os.Stderr, "Login failed: %v\n", err)
			os.Exit(1)
		}
	case "status", "":
		runStatus(ctx, store)
	case "logout":
		store.Clear(ctx)
		fmt.Println("Logged out")
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		os.Exit(1)
	}
}
