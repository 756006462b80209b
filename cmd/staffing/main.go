// Command staffing is the operator CLI: it inspects and edits records, moves
// data between backends, seeds demo data, imports the staff roster and mints
// admin tokens.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := Execute(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, ErrUsage) {
			fmt.Fprintln(os.Stderr, err)
			fmt.Fprintln(os.Stderr)
			PrintUsage(os.Stderr)
			os.Exit(2)
		}
		log.Fatal(err)
	}
}

func PrintUsage(w io.Writer) {
	fmt.Fprintln(w, "staffing - operator CLI for the staffing record store")
	fmt.Fprintln(w, "\nUsage:")
	fmt.Fprintln(w, "  staffing find <collection> [field=value ...]")
	fmt.Fprintln(w, "  staffing get <collection> <id>")
	fmt.Fprintln(w, "  staffing insert <collection> <json>")
	fmt.Fprintln(w, "  staffing update <collection> <id> <json>")
	fmt.Fprintln(w, "  staffing migrate -to <embedded|sql|remote> [-data-dir dir] [-driver d -dsn dsn] [-addr host:port]")
	fmt.Fprintln(w, "  staffing seed [-staff n] [-applications n] [-days n] [-seed n]")
	fmt.Fprintln(w, "  staffing import-staff <roster.xlsx|roster.xls>")
	fmt.Fprintln(w, "  staffing token [-subject name] [-role admin] [-ttl 12h]")
	fmt.Fprintln(w, "  staffing ping")
	fmt.Fprintln(w, "\nThe store is selected with the same STAFFING_* variables as the daemon:")
	fmt.Fprintln(w, "  STAFFING_STORE_BACKEND  embedded | sql | remote | auto (default: embedded)")
	fmt.Fprintln(w, "  STAFFING_STORE_ADDR     address of a staffingd record-store port")
	fmt.Fprintln(w, "  STAFFING_DISABLE_TLS    set to true to disable TLS")
}

func printJSON(w io.Writer, v any) error {
	bytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(bytes))
	return err
}
