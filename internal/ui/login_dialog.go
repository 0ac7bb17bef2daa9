package ui

import (
	"context"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	"github.com/rs/zerolog"

	xlog "github.com/ytget/cilicili/internal/log"
	"github.com/ytget/cilicili/internal/login"
	"github.com/ytget/cilicili/internal/model"
)

// LoginDialog shows the QR code of one login attempt. Closing the dialog
// closes the attempt, which stops polling.
type LoginDialog struct {
	window       fyne.Window
	controller   *login.Controller
	localization *Localization
	logger       zerolog.Logger

	dialog     *dialog.CustomDialog
	image      *canvas.Image
	status     *widget.Label
	spinner    *widget.ProgressBarInfinite
	refreshBtn *widget.Button

	mu      sync.Mutex
	attempt *login.Attempt
	closed  bool
	shownQR string
}

// NewLoginDialog builds the dialog; Show starts the attempt
func NewLoginDialog(window fyne.Window, controller *login.Controller, localization *Localization, logger zerolog.Logger) *LoginDialog {
	d := &LoginDialog{
		window:       window,
		controller:   controller,
		localization: localization,
		logger:       logger,
	}
	d.createUI()
	return d
}

func (d *LoginDialog) createUI() {
	d.image = canvas.NewImageFromResource(nil)
	d.image.FillMode = canvas.ImageFillContain
	d.image.SetMinSize(fyne.NewSize(QRImageSize, QRImageSize))

	d.status = widget.NewLabel(login.MsgFetching)
	d.status.Alignment = fyne.TextAlignCenter
	d.status.Wrapping = fyne.TextWrapWord

	d.spinner = widget.NewProgressBarInfinite()

	d.refreshBtn = widget.NewButton(d.localization.GetText(KeyRefresh), d.onRefresh)
	d.refreshBtn.Disable()

	content := container.NewVBox(
		container.NewCenter(d.image),
		d.spinner,
		d.status,
		container.NewCenter(d.refreshBtn),
	)
	d.dialog = dialog.NewCustom(d.localization.GetText(KeyScanToLogin), d.localization.GetText(KeyClose), content, d.window)
	d.dialog.SetOnClosed(d.onClosed)
	d.dialog.Resize(fyne.NewSize(LoginDialogWidth, LoginDialogHeight))
}

// Show opens the dialog and acquires a new login attempt
func (d *LoginDialog) Show() {
	d.dialog.Show()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), LoginTimeout)
		defer cancel()
		a, err := d.controller.Acquire(ctx)
		if err != nil {
			d.logger.Warn().Err(err).Msg("login attempt failed to start")
		}

		d.mu.Lock()
		if d.closed {
			d.mu.Unlock()
			a.Close()
			return
		}
		d.attempt = a
		d.mu.Unlock()
	}()
}

// Hide closes the dialog
func (d *LoginDialog) Hide() {
	d.dialog.Hide()
}

// Apply renders a controller status. It must run on the UI goroutine.
func (d *LoginDialog) Apply(st login.Status) {
	if st.Message != "" {
		d.status.SetText(st.Message)
	}

	switch st.State {
	case model.LoginStateLoading:
		d.spinner.Show()
		d.refreshBtn.Disable()
	case model.LoginStatePolling:
		d.spinner.Hide()
		d.refreshBtn.Enable()
		d.showChallenge(st.Challenge)
	case model.LoginStateSuccess:
		d.spinner.Hide()
		d.refreshBtn.Disable()
	case model.LoginStateError:
		d.spinner.Hide()
		d.refreshBtn.Enable()
		d.status.Importance = widget.DangerImportance
		d.status.Refresh()
		return
	}
	d.status.Importance = widget.MediumImportance
	d.status.Refresh()
}

func (d *LoginDialog) showChallenge(ch *model.LoginChallenge) {
	if ch == nil || ch.URL == d.shownQR {
		return
	}
	res, err := qrResource("login-"+ch.Key+".png", ch.URL)
	if err != nil {
		d.logger.Error().Err(err).Str(xlog.FieldChallengeKey, ch.Key).Msg("render qr code")
		return
	}
	d.shownQR = ch.URL
	d.image.Resource = res
	d.image.Refresh()
}

func (d *LoginDialog) onRefresh() {
	d.mu.Lock()
	a := d.attempt
	d.mu.Unlock()
	if a == nil {
		return
	}
	d.refreshBtn.Disable()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), LoginTimeout)
		defer cancel()
		if err := a.Refresh(ctx); err != nil {
			d.logger.Warn().Err(err).Msg("login refresh failed")
		}
	}()
}

func (d *LoginDialog) onClosed() {
	d.mu.Lock()
	d.closed = true
	a := d.attempt
	d.mu.Unlock()
	if a != nil {
		a.Close()
	}
}
