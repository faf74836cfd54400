// Command witra-cli is a headless, line-oriented driver for internal/core:
// it starts a node, prints discovered peers and transfer events as lines
// on stdout, and accepts connect/accept/reject/send/cancel commands on
// stdin. Grounded on the teacher's cmd/cli-client + cmd/cli-server (a
// terminal-only entry point with no Fyne window), merged into one binary
// since a Witra node is both roles at once (SPEC_FULL.md's module map).
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/williampepple1/witra/internal/config"
	"github.com/williampepple1/witra/internal/core"
	"github.com/williampepple1/witra/internal/wire"
)

func main() {
	name := flag.String("name", "", "Display name to advertise (default: persisted or hostname)")
	downloadDir := flag.String("download-dir", "", "Download directory (default: persisted or documents/home fallback)")
	flag.Parse()

	settings, err := config.LoadUserSettings()
	if err != nil {
		settings = config.DefaultUserSettings()
	}
	if *name != "" {
		settings.DisplayName = *name
	}
	if *downloadDir != "" {
		settings.DownloadPath = *downloadDir
	}

	c := core.New(core.Config{
		PeerID:       uuid.New().String(),
		DisplayName:  settings.DisplayName,
		DeviceName:   hostnameOrDefault(),
		DownloadDir:  settings.DownloadPath,
		TransferPort: wire.TransferPort,
	})

	if err := c.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "witra-cli: %v\n", err)
	}
	defer c.Stop()

	_, events := c.Subscribe()
	go func() {
		for ev := range events {
			fmt.Println(ev.String())
		}
	}()

	fmt.Println("witra-cli ready. Type 'help' for commands.")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !dispatch(c, line) {
			break
		}
	}
}

func dispatch(c *core.Core, line string) bool {
	fields := strings.Fields(line)
	cmd := fields[0]
	args := fields[1:]

	switch cmd {
	case "help":
		printHelp()
	case "quit", "exit":
		return false
	case "peers":
		for _, p := range c.Peers() {
			fmt.Printf("%s\t%s\t%s\t%s:%d\n", p.ID, p.DisplayName, p.State, p.Address, p.TransferPort)
		}
	case "transfers":
		for _, t := range c.Transfers() {
			fmt.Printf("%s\t%s\t%s\t%s\t%d/%d\n", t.ID, t.Name, t.Direction, t.Status, t.BytesTransferred, t.TotalSize)
		}
	case "connect":
		requireArgs(args, 1, func() { must(c.Connect(args[0])) })
	case "accept":
		requireArgs(args, 1, func() { must(c.Accept(args[0])) })
	case "reject":
		requireArgs(args, 1, func() { must(c.Reject(args[0])) })
	case "disconnect":
		requireArgs(args, 1, func() { must(c.Disconnect(args[0])) })
	case "send":
		requireArgs(args, 2, func() {
			id, err := c.SendFile(args[0], args[1])
			report(id, err)
		})
	case "sendfolder":
		requireArgs(args, 2, func() {
			id, err := c.SendFolder(args[0], args[1])
			report(id, err)
		})
	case "cancel":
		requireArgs(args, 1, func() { must(c.CancelTransfer(args[0])) })
	case "name":
		requireArgs(args, 1, func() { c.SetDisplayName(strings.Join(args, " ")) })
	case "validate-port":
		requireArgs(args, 1, func() {
			if err := config.ValidatePort(args[0]); err != nil {
				fmt.Println(err)
			} else {
				fmt.Println("ok")
			}
		})
	default:
		fmt.Printf("unknown command: %s (try 'help')\n", cmd)
	}
	return true
}

func requireArgs(args []string, n int, fn func()) {
	if len(args) < n {
		fmt.Printf("error: expected %d argument(s), got %d\n", n, len(args))
		return
	}
	fn()
}

func must(err error) {
	if err != nil {
		fmt.Println("error:", err)
	}
}

func report(id string, err error) {
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println("transfer started:", id)
}

func printHelp() {
	fmt.Println(strings.Join([]string{
		"peers                          list known peers",
		"transfers                      list known transfers",
		"connect <peer-id>              send a connection request",
		"accept <peer-id>                accept a pending incoming request",
		"reject <peer-id>                reject a pending incoming request",
		"disconnect <peer-id>            close the session with a peer",
		"send <peer-id> <path>           send a single file",
		"sendfolder <peer-id> <path>     send a folder recursively",
		"cancel <transfer-id>            cancel an in-progress transfer",
		"name <display name>            change the advertised display name",
		"validate-port <port>           check a manually typed port number",
		"quit                           exit",
	}, "\n"))
}

func hostnameOrDefault() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "witra-node"
	}
	return host
}
