package main

import (
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	devenv "gtinlookup/dev/env"
	"gtinlookup/internal/config"
	"gtinlookup/internal/fixture"
	"gtinlookup/internal/store"

	"github.com/tcnksm/go-input"
	_ "modernc.org/sqlite"
)

// FixtureAddr is where dev/fixture listens.
const FixtureAddr = "localhost:8089"

func CreateHistoryDB() error {
	path, err := devenv.ResolvePath("<dev_state>/history.db")
	if err != nil {
		return err
	}

	_, err = os.Stat(path)
	if err == nil {
		fmt.Println("database already created at", path)
		return nil
	}

	fmt.Println("creating database at", path)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}
	defer db.Close()
	_, err = db.Exec(store.Schema)
	return err
}

func CreateSampleInput() error {
	path, err := devenv.ResolvePath("<dev_state>/input.csv")
	if err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	writer.Comma = ';'
	err = writer.Write([]string{"Name", "GTIN", "Quelle"})
	if err != nil {
		return err
	}
	for i, identifier := range fixture.Identifiers() {
		source := "shop"
		if i%2 == 1 {
			source = "lager"
		}
		err = writer.Write([]string{"Produkt " + strconv.Itoa(i+1), identifier, source})
		if err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func ask(ui *input.UI, query, fallback string) (string, error) {
	return ui.Ask(query, &input.Options{
		Default:     fallback,
		HideDefault: false,
		Loop:        true,
	})
}

func CreateConfig(interactive bool) error {
	path, err := devenv.ResolvePath("<dev_state>/" + config.DefaultFile)
	if err != nil {
		return err
	}
	_, err = os.Stat(path)
	if err == nil {
		slog.Info("config has already been created", "path", path)
		return nil
	}

	state := func(name string) string {
		resolved, _ := devenv.ResolvePath("<dev_state>/" + name)
		return resolved
	}

	cfg := config.Default()
	cfg.Site.Url = fmt.Sprintf("http://%s/", FixtureAddr)
	cfg.Driver.DumpDir = state("resty")
	cfg.Input.Path = state("input.csv")
	cfg.Input.Delimiter = ";"
	cfg.Input.SourceTagColumn = "Quelle"
	cfg.Output.Path = state("output.csv")
	cfg.RunLog = state("gtinlookup.log")
	cfg.HistoryDb = state("history.db")

	if interactive {
		ui := input.DefaultUI()
		cfg.Driver.Kind, err = ui.Select("page driver:", []string{config.DriverStatic, config.DriverBrowser}, &input.Options{
			Default: config.DriverStatic,
			Loop:    true,
		})
		if err != nil {
			return err
		}
		cfg.Site.Url, err = ask(ui, "site url:", cfg.Site.Url)
		if err != nil {
			return err
		}
		server, err := ui.Ask("smtp server for run summaries (empty to skip):", &input.Options{})
		if err != nil {
			return err
		}
		if server != "" {
			cfg.Notify.Server = server
			cfg.Notify.Port = 587
			cfg.Notify.EmailAddress, err = ask(ui, "sender address:", "")
			if err != nil {
				return err
			}
			cfg.Notify.Password, err = ui.Ask("sender password:", &input.Options{Mask: true, Loop: true})
			if err != nil {
				return err
			}
			to, err := ask(ui, "send summaries to:", cfg.Notify.EmailAddress)
			if err != nil {
				return err
			}
			cfg.Notify.To = []string{to}
		}
	}

	contents, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	slog.Info("writing config", "path", path)
	return os.WriteFile(path, contents, 0600)
}

func PrintUsage() {
	configPath, _ := devenv.GetStateFilePath(config.DefaultFile)
	fmt.Printf(`
start the fixture site:  go run ./dev/fixture
look everything up:      go run ./cmd/gtinlookup run --config %s
`, configPath)
}
