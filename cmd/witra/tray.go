package main

import (
	"fmt"

	"fyne.io/fyne/v2"
	"fyne.io/systray"

	"github.com/williampepple1/witra/internal/core"
)

// setupTray adds a system-tray icon (base spec §1's "system-tray
// integration" external collaborator, via fyne.io/systray) with three
// items: "Show Witra" brings the main window to the front, a disabled item
// shows the peer count (counted from PeerAdded/PeerRemoved events), and
// "Quit" stops the core and quits the app. Quit does not go through the
// window's close intercept, so window geometry is not saved on that path;
// closing the window does not hide it to the tray.
func setupTray(a fyne.App, w fyne.Window, c *core.Core) {
	go systray.Run(func() {
		systray.SetTitle("Witra")
		systray.SetTooltip("Witra — LAN file transfer")

		show := systray.AddMenuItem("Show Witra", "Bring the main window to front")
		peersItem := systray.AddMenuItem("0 peers online", "")
		peersItem.Disable()
		systray.AddSeparator()
		quit := systray.AddMenuItem("Quit", "Stop Witra and exit")

		go func() {
			for {
				select {
				case <-show.ClickedCh:
					fyne.Do(func() {
						w.Show()
						w.RequestFocus()
					})
				case <-quit.ClickedCh:
					systray.Quit()
					fyne.Do(func() {
						c.Stop()
						a.Quit()
					})
					return
				}
			}
		}()

		_, events := c.Subscribe()
		go func() {
			count := 0
			for ev := range events {
				switch ev.Kind {
				case core.EventPeerAdded:
					count++
				case core.EventPeerRemoved:
					if count > 0 {
						count--
					}
				default:
					continue
				}
				n := count
				fyne.Do(func() { peersItem.SetTitle(fmt.Sprintf("%d peers online", n)) })
			}
		}()
	}, func() {})
}
