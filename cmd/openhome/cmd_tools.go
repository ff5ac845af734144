/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/openhome/internal/auth"
	"github.com/friendsincode/openhome/internal/discovery"
)

var (
	discoverTimeout time.Duration
	discoverIface   string
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "List controllers advertised on the local network",
	RunE: func(cmd *cobra.Command, args []string) error {
		peers, err := discovery.Browse(context.Background(), discoverIface, discoverTimeout)
		if err != nil {
			return err
		}
		if len(peers) == 0 {
			fmt.Println("No controllers found.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tADDRESS\tVERSION\tSTATIONS\tEXTENSION")
		for _, p := range peers {
			addr := p.Host
			if len(p.Addresses) > 0 {
				addr = p.Addresses[0]
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%v\n", p.Instance, net.JoinHostPort(addr, strconv.Itoa(p.Port)), p.Info.Version, p.Info.Stations, p.Info.RemoteExtension)
		}
		return w.Flush()
	},
}

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password",
	Short: "Print a bcrypt hash for OPENHOME_ADMIN_PASSWORD_HASH",
	Long:  "Reads a password from stdin and prints its bcrypt hash.",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprint(os.Stderr, "Password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read password: %w", err)
		}
		pw := strings.TrimRight(line, "\r\n")
		if pw == "" {
			return fmt.Errorf("password must not be empty")
		}
		hash, err := auth.HashPassword(pw)
		if err != nil {
			return err
		}
		fmt.Println(hash)
		return nil
	},
}

func init() {
	discoverCmd.Flags().DurationVar(&discoverTimeout, "timeout", 3*time.Second, "How long to listen for answers")
	discoverCmd.Flags().StringVar(&discoverIface, "interface", "", "Network interface to browse on (default all)")
	rootCmd.AddCommand(discoverCmd, hashPasswordCmd)
}
