package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/technosupport/ts-lms/internal/auth"
)

func main() {
	password := flag.String("password", "", "Password to hash")
	flag.Parse()

	if *password == "" {
		log.Fatal("usage: hasher -password <password>")
	}

	hash, err := auth.HashPassword(*password)
	if err != nil {
		log.Fatalf("Hash failed: %v", err)
	}
	fmt.Println(hash)
}
