package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/hokaccha/go-prettyjson"
	"github.com/spf13/cobra"
)

var errInvalidPayload = errors.New("payload is not valid JSON")

func parsePayload(s string) (json.RawMessage, error) {
	if !json.Valid([]byte(s)) {
		return nil, fmt.Errorf("%w: %s", errInvalidPayload, s)
	}
	return json.RawMessage(s), nil
}

func (a *app) logJSON(cmd *cobra.Command, v any) {
	m, err := json.Marshal(v)
	if err != nil {
		logError(cmd, err)
		return
	}
	if a.raw {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n", m)
		return
	}
	pj, err := prettyjson.Format(m)
	if err != nil {
		logError(cmd, err)
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n\n", string(pj))
}

func logUsage(cmd *cobra.Command) {
	fmt.Fprintf(cmd.OutOrStdout(), color.YellowString("\nusage: %s\n\n"), cmd.UseLine())
}

func logError(cmd *cobra.Command, err error) {
	boldRed := color.New(color.FgRed, color.Bold)
	boldRed.Fprintf(cmd.ErrOrStderr(), "\nerror: ")
	fmt.Fprintf(cmd.ErrOrStderr(), "%s\n\n", color.RedString(err.Error()))
}
