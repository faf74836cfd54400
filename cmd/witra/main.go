// Command witra is the desktop peer-to-peer file-transfer application: a
// single Fyne window showing discovered peers and in-flight transfers,
// backed by internal/core. Grounded on the teacher's cmd/client/main.go +
// cmd/server/main.go (merged into one window, since every Witra node plays
// both roles per SPEC_FULL.md's Design Note).
package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"github.com/google/uuid"

	"github.com/williampepple1/witra/internal/config"
	"github.com/williampepple1/witra/internal/core"
	"github.com/williampepple1/witra/internal/logger"
	"github.com/williampepple1/witra/internal/logging"
	"github.com/williampepple1/witra/internal/peerregistry"
	"github.com/williampepple1/witra/internal/transferregistry"
	"github.com/williampepple1/witra/internal/ui"
	"github.com/williampepple1/witra/internal/wire"
)

func main() {
	// Forces the software rendering driver on Windows if not already set,
	// matching the teacher's cmd/client and cmd/server entry points.
	if runtime.GOOS == "windows" && strings.TrimSpace(os.Getenv("FYNE_DRIVER")) == "" {
		_ = os.Setenv("FYNE_DRIVER", "software")
	}

	settings, err := config.LoadUserSettings()
	if err != nil {
		settings = config.DefaultUserSettings()
	}

	logDir := logDirectory()
	if err := logger.InitLoggers(logDir); err != nil {
		fmt.Fprintf(os.Stderr, "witra: failed to open log files: %v\n", err)
	}
	defer logger.CloseLoggers()

	c := core.New(core.Config{
		PeerID:       uuid.New().String(),
		DisplayName:  settings.DisplayName,
		DeviceName:   hostnameOrDefault(),
		DownloadDir:  settings.DownloadPath,
		TransferPort: wire.TransferPort,
	})

	a := app.New()
	a.Settings().SetTheme(ui.NewCustomTheme())
	w := a.NewWindow("Witra")

	peerList := widget.NewList(
		func() int { return 0 },
		func() fyne.CanvasObject { return widget.NewLabel("") },
		func(widget.ListItemID, fyne.CanvasObject) {},
	)
	var peers []peerregistry.Peer
	peerList.Length = func() int { return len(peers) }
	peerList.CreateItem = func() fyne.CanvasObject {
		return container.NewHBox(widget.NewLabel(""), widget.NewLabel(""), widget.NewButton("Connect", nil))
	}
	peerList.UpdateItem = func(id widget.ListItemID, obj fyne.CanvasObject) {
		if id < 0 || id >= len(peers) {
			return
		}
		p := peers[id]
		row := obj.(*fyne.Container)
		row.Objects[0].(*widget.Label).SetText(p.DisplayName)
		row.Objects[1].(*widget.Label).SetText(p.State.String())
		btn := row.Objects[2].(*widget.Button)
		btn.SetText(connectButtonLabel(p.State))
		btn.Disable()
		if p.State == peerregistry.Discovered {
			btn.Enable()
		}
		btn.OnTapped = func() {
			if err := c.Connect(p.ID); err != nil {
				dialog.ShowError(err, w)
			}
		}
	}

	transferList := widget.NewList(
		func() int { return 0 },
		func() fyne.CanvasObject { return widget.NewLabel("") },
		func(widget.ListItemID, fyne.CanvasObject) {},
	)
	var transfers []transferregistry.Transfer
	transferList.Length = func() int { return len(transfers) }
	transferList.CreateItem = func() fyne.CanvasObject {
		return ui.NewProgressIndicator()
	}
	transferList.UpdateItem = func(id widget.ListItemID, obj fyne.CanvasObject) {
		if id < 0 || id >= len(transfers) {
			return
		}
		t := transfers[id]
		pi := obj.(*ui.ProgressIndicator)
		pi.SetStatus(fmt.Sprintf("%s %s (%s)", t.Name, t.Direction, t.Status))
		var progress float64
		if t.TotalSize > 0 {
			progress = float64(t.BytesTransferred) / float64(t.TotalSize)
		}
		pi.SetProgress(progress, t.CurrentSpeed, t.TotalSize, t.BytesTransferred)
	}

	status := ui.NewStatusBar()
	logView := logging.NewLogView()

	selectedPeer := -1
	peerList.OnSelected = func(id widget.ListItemID) { selectedPeer = id }
	peerList.OnUnselected = func(widget.ListItemID) { selectedPeer = -1 }

	sendFileBtn := widget.NewButton("Send file...", func() {
		if selectedPeer < 0 || selectedPeer >= len(peers) {
			dialog.ShowInformation("Witra", "Select a connected peer first", w)
			return
		}
		peerID := peers[selectedPeer].ID
		dialog.ShowFileOpen(func(uc fyne.URIReadCloser, err error) {
			if err != nil || uc == nil {
				return
			}
			_ = uc.Close()
			if _, err := c.SendFile(peerID, uc.URI().Path()); err != nil {
				dialog.ShowError(err, w)
			}
		}, w)
	})
	sendFolderBtn := widget.NewButton("Send folder...", func() {
		if selectedPeer < 0 || selectedPeer >= len(peers) {
			dialog.ShowInformation("Witra", "Select a connected peer first", w)
			return
		}
		peerID := peers[selectedPeer].ID
		dialog.ShowFolderOpen(func(uri fyne.ListableURI, err error) {
			if err != nil || uri == nil {
				return
			}
			if _, err := c.SendFolder(peerID, uri.Path()); err != nil {
				dialog.ShowError(err, w)
			}
		}, w)
	})

	w.SetContent(container.NewBorder(
		container.NewVBox(
			widget.NewLabel("Peers"), peerList,
			container.NewHBox(sendFileBtn, sendFolderBtn),
			widget.NewSeparator(), widget.NewLabel("Transfers"), transferList,
		),
		status,
		nil, nil,
		container.NewBorder(nil, nil, nil, nil, container.NewVBox(widget.NewLabel("Activity"), logView.CanvasObject())),
	))

	refresh := func() {
		fyne.Do(func() {
			peers = c.Peers()
			peerList.Refresh()
			transfers = c.Transfers()
			transferList.Refresh()
			status.SetInfo(fmt.Sprintf("%d peers", len(peers)))
		})
	}

	_, events := c.Subscribe()
	go func() {
		for ev := range events {
			fyne.Do(func() { logView.AppendEvent(ev) })
			switch ev.Kind {
			case core.EventConnectionRequestReceived:
				peerID, peerName := ev.PeerID, ev.PeerName
				fyne.Do(func() { promptIncomingRequest(w, c, peerID, peerName) })
			}
			refresh()
		}
	}()

	if err := c.Start(); err != nil {
		dialog.ShowError(err, w)
	}

	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			refresh()
		}
	}()

	setupTray(a, w, c)

	w.Resize(fyne.NewSize(float32(settings.WindowWidth), float32(settings.WindowHeight)))
	w.SetCloseIntercept(func() {
		size := w.Content().Size()
		settings.WindowWidth = int(size.Width)
		settings.WindowHeight = int(size.Height)
		_ = config.SaveUserSettings(settings)
		c.Stop()
		w.Close()
	})
	w.ShowAndRun()
}

func connectButtonLabel(state peerregistry.ConnectionState) string {
	switch state {
	case peerregistry.Connected:
		return "Connected"
	case peerregistry.RequestSent:
		return "Requesting..."
	case peerregistry.RequestReceived:
		return "Pending"
	default:
		return "Connect"
	}
}

func promptIncomingRequest(w fyne.Window, c *core.Core, peerID, peerName string) {
	d := dialog.NewConfirm(
		"Connection request",
		fmt.Sprintf("%s wants to connect. Accept?", peerName),
		func(accept bool) {
			if accept {
				_ = c.Accept(peerID)
			} else {
				_ = c.Reject(peerID)
			}
		},
		w,
	)
	// The UI-layer 30s auto-reject convention (base spec §5) is enforced
	// here, not in core: core only ever sees a normal Reject call.
	timer := time.AfterFunc(30*time.Second, func() {
		fyne.Do(func() {
			d.Hide()
			_ = c.Reject(peerID)
		})
	})
	d.SetOnClosed(func() { timer.Stop() })
	d.Show()
}

func hostnameOrDefault() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "witra-node"
	}
	return host
}

func logDirectory() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home + "/.witra/logs"
}
