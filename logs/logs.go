package logs

import (
	"log"
	"os"
	"path/filepath"

	"github.com/cube2222/octojit/config"
)

var Output *os.File

func InitializeFileLogger() {
	path := filepath.Join(config.OctojitCacheDir, "logs.txt")
	if err := os.MkdirAll(config.OctojitCacheDir, 0755); err != nil {
		log.Fatalf("couldn't create ~/.octojit home directory: %s", err)
	}
	f, err := os.Create(path)
	if err != nil {
		log.Fatalf("couldn't create logs file: %s", err)
	}
	Output = f
	log.SetOutput(Output)
}

func CloseLogger() {
	if Output != nil {
		Output.Close()
	}
}
