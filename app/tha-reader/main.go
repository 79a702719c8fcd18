package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/ardanlabs/conf"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/openuhs/go-sentinel/domain/archive"
	"github.com/openuhs/go-sentinel/entities"
	"github.com/openuhs/go-sentinel/infrastructure/store"
)

const envPrefix = "UHS_THA_READER"

func main() {
	if err := run(); err != nil {
		log.Fatalf("main: exited with error: %s", err.Error())
	}
}

func run() error {
	var cfg struct {
		Tha struct {
			Type       string `conf:"default:pebble"`
			Parameter  string `conf:"default:archive"`
			Port       int    `conf:"default:9142"`
			User       string `conf:"optional"`
			Password   string `conf:"optional,mask"`
			SSLVersion string `conf:"default:TLS1_2"`
		}
	}

	if err := conf.Parse(os.Args[1:], envPrefix, &cfg); err != nil {
		switch {
		case errors.Is(err, conf.ErrHelpWanted):
			usage, err := conf.Usage(envPrefix, &cfg)
			if err != nil {
				return errors.Wrap(err, "generating config usage")
			}
			fmt.Println(usage)
			return nil
		case errors.Is(err, conf.ErrVersionWanted):
			version, err := conf.VersionString(envPrefix, &cfg)
			if err != nil {
				return errors.Wrap(err, "generating config version")
			}
			fmt.Println(version)
			return nil
		}
		return errors.Wrap(err, "parsing config")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return errors.Wrap(err, "creating logger")
	}
	defer logger.Sync()
	sLogger := logger.Sugar()

	backend, err := store.NewBackend(store.Config{
		Type:       cfg.Tha.Type,
		Parameter:  cfg.Tha.Parameter,
		Port:       cfg.Tha.Port,
		User:       cfg.Tha.User,
		Password:   cfg.Tha.Password,
		SSLVersion: cfg.Tha.SSLVersion,
	}, sLogger)
	if err != nil {
		return errors.Wrap(err, "opening archive backend")
	}
	defer backend.Close()

	archiver := archive.NewArchiver(0, backend, nil, sLogger)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		tokens := strings.Fields(scanner.Text())
		if len(tokens) == 1 && tokens[0] == "q" {
			fmt.Println("Exit")
			return nil
		}
		if len(tokens) == 2 {
			if handleCommand(archiver, tokens[0], tokens[1]) {
				continue
			}
		}
		fmt.Println("Enter a valid command (d for delete, p for print, q for quit) followed by a hexadecimal transaction id")
	}
}

func handleCommand(archiver *archive.Archiver, command, txidArg string) bool {
	txID, err := entities.HashFromHex(txidArg)
	if err != nil {
		return false
	}
	switch command {
	case "p":
		state, tx, timestamp, found := archiver.Get(txID)
		if !found {
			fmt.Printf("Transaction with ID %s not found\n", txidArg)
			return true
		}
		fmt.Printf("Read TX: %s\n", entities.FormatTx(tx, state, timestamp))
		return true
	case "d":
		if archiver.Delete(txID) == 0 {
			fmt.Printf("Transaction with ID %s not found\n", txidArg)
			return true
		}
		fmt.Println("Transaction deleted.")
		return true
	default:
		return false
	}
}
