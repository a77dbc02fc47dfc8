// protodump decodes a binary protobuf payload against a runtime-loaded
// .proto schema and prints the result as JSON.
//
// Usage:
//
//	protodump -proto api.proto -type shop.Order -in payload.bin
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/protodyn/protodyn"
)

func main() {
	var (
		protoPath = flag.String("proto", "", "path to a .proto file or directory")
		msgType   = flag.String("type", "", "message type to decode, e.g. shop.Order")
		inPath    = flag.String("in", "", "binary payload file, - for stdin")
		importDir = flag.String("I", "", "additional import search root")
	)
	flag.Parse()

	if *protoPath == "" || *msgType == "" || *inPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	var dirs []string
	if *importDir != "" {
		dirs = append(dirs, *importDir)
	}
	p := protodyn.New(dirs...)
	if err := p.LoadSchema(*protoPath); err != nil {
		log.Fatalf("failed to load schema: %v", err)
	}

	var payload []byte
	var err error
	if *inPath == "-" {
		payload, err = io.ReadAll(os.Stdin)
	} else {
		payload, err = os.ReadFile(*inPath)
	}
	if err != nil {
		log.Fatalf("failed to read payload: %v", err)
	}

	result, err := p.Parse(payload, *msgType)
	if err != nil {
		log.Fatalf("failed to decode %s: %v", *msgType, err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatalf("failed to render result: %v", err)
	}
	fmt.Println(string(out))
}
