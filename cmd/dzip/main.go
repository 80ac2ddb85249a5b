package main

import (
	"context"
	"log"

	"github.com/nguyengg/dzip/internal/cmd"
	"github.com/nguyengg/dzip/internal/config"
)

func main() {
	p, err := cmd.NewParser()
	if err != nil {
		log.Fatalf("create parser error: %v", err)
	}

	// the file provides defaults so it must be applied before the command line is parsed.
	if _, err = config.Load(context.Background(), p); err != nil {
		log.Printf("load config error: %v", err)
		exit(err)
	}

	_, err = p.Parse()
	exit(err)
}
