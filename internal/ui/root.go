package ui

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"
	"github.com/rs/zerolog"

	"github.com/ytget/cilicili/internal/apperr"
	"github.com/ytget/cilicili/internal/bilibili"
	"github.com/ytget/cilicili/internal/config"
	"github.com/ytget/cilicili/internal/download"
	"github.com/ytget/cilicili/internal/export"
	xlog "github.com/ytget/cilicili/internal/log"
	"github.com/ytget/cilicili/internal/login"
	"github.com/ytget/cilicili/internal/model"
	"github.com/ytget/cilicili/internal/session"
	"github.com/ytget/cilicili/internal/transcode"
)

// VideoAPI resolves user input into metadata and streams
type VideoAPI interface {
	ResolveVideoID(ctx context.Context, input string) (string, error)
	GetVideoInfo(ctx context.Context, videoID string) (*model.VideoMetadata, error)
	GetVideoStreams(ctx context.Context, bvid string, cid uint64, credential string) (*model.StreamOptions, error)
}

// Services are the backends the window drives
type Services struct {
	API      VideoAPI
	Queue    *download.Queue
	Sessions *session.Store
	Login    *login.Controller
	Export   *export.Pipeline
	Settings *config.Settings
	Logger   zerolog.Logger
}

// RootUI represents the main window
type RootUI struct {
	ctx          context.Context
	window       fyne.Window
	svc          Services
	localization *Localization
	logger       zerolog.Logger

	urlEntry     *widget.Entry
	analyzeBtn   *widget.Button
	downloadBtn  *widget.Button
	accountBtn   *widget.Button
	videoTitle   *widget.Label
	videoSelect  *widget.Select
	audioSelect  *widget.Select
	notification *widget.Label
	spinner      *widget.ProgressBarInfinite
	itemList     *widget.List

	// analysis result, touched on the UI goroutine only
	meta    *model.VideoMetadata
	choice  *qualityChoice
	current string

	itemsMu sync.Mutex
	items   []*model.DownloadItem

	loginDlg *LoginDialog
}

// NewRootUI builds the main window content. ctx bounds background work
// started from the window.
func NewRootUI(ctx context.Context, window fyne.Window, svc Services) *RootUI {
	localization := NewLocalization()
	localization.SetLanguage(svc.Settings.GetLanguage())

	ui := &RootUI{
		ctx:          ctx,
		window:       window,
		svc:          svc,
		localization: localization,
		logger:       svc.Logger.With().Str(xlog.FieldComponent, "ui").Logger(),
	}
	window.SetTitle(localization.GetText(KeyAppTitle))

	svc.Queue.SetChangeCallback(ui.onItemChanged)
	svc.Sessions.Subscribe(func(s model.Session) {
		fyne.Do(func() { ui.updateAccount(s) })
	})
	svc.Login.Subscribe(func(st login.Status) {
		fyne.Do(func() {
			if ui.loginDlg != nil {
				ui.loginDlg.Apply(st)
			}
		})
	})
	svc.Login.OnDismiss(func() {
		fyne.Do(func() {
			if ui.loginDlg != nil {
				ui.loginDlg.Hide()
			}
		})
	})

	ui.setupUI()
	ui.updateAccount(svc.Sessions.Snapshot())
	return ui
}

// setupUI creates and arranges all UI components
func (ui *RootUI) setupUI() {
	t := ui.localization.GetText
	ui.createMenu()

	ui.urlEntry = widget.NewEntry()
	ui.urlEntry.SetPlaceHolder(t(KeyEnterURL))
	ui.urlEntry.OnSubmitted = func(string) { ui.onAnalyze() }
	ui.analyzeBtn = widget.NewButton(t(KeyAnalyze), ui.onAnalyze)
	ui.accountBtn = widget.NewButton(IconUser+" "+t(KeyLogin), ui.onAccount)
	settingsBtn := widget.NewButton(IconSettings, ui.onShowSettings)
	settingsBtn.Importance = widget.LowImportance

	top := container.NewBorder(nil, nil,
		container.NewHBox(ui.accountBtn, settingsBtn),
		ui.analyzeBtn,
		ui.urlEntry)

	ui.videoTitle = widget.NewLabel("")
	ui.videoTitle.TextStyle = fyne.TextStyle{Bold: true}
	ui.videoTitle.Truncation = fyne.TextTruncateEllipsis
	ui.videoSelect = widget.NewSelect(nil, nil)
	ui.videoSelect.PlaceHolder = t(KeyVideoQuality)
	ui.audioSelect = widget.NewSelect(nil, nil)
	ui.audioSelect.PlaceHolder = t(KeyAudioQuality)
	ui.downloadBtn = widget.NewButton(t(KeyDownload), ui.onDownload)
	ui.downloadBtn.Importance = widget.HighImportance
	ui.downloadBtn.Disable()

	picker := container.NewBorder(nil, nil, nil, ui.downloadBtn,
		container.NewGridWithColumns(2, ui.videoSelect, ui.audioSelect))

	ui.notification = widget.NewLabel("")
	ui.notification.Wrapping = fyne.TextWrapWord
	ui.spinner = widget.NewProgressBarInfinite()
	ui.spinner.Hide()

	header := container.NewVBox(top, ui.spinner, ui.notification, ui.videoTitle, picker, widget.NewSeparator())

	ui.itemList = widget.NewList(
		func() int {
			ui.itemsMu.Lock()
			defer ui.itemsMu.Unlock()
			return len(ui.items)
		},
		func() fyne.CanvasObject { return NewItemRow(nil, ui.localization) },
		ui.updateItemRow,
	)

	ui.window.SetContent(container.NewBorder(header, nil, nil, nil, ui.itemList))
}

// createMenu creates the application menu
func (ui *RootUI) createMenu() {
	t := ui.localization.GetText

	fileMenu := fyne.NewMenu(t(KeyFile),
		fyne.NewMenuItem(t(KeySettings), ui.onShowSettings),
		fyne.NewMenuItem(t(KeyChooseExport), ui.onChooseExportFolder),
		fyne.NewMenuItem(t(KeyExportAll), ui.onExportCompleted),
	)
	accountMenu := fyne.NewMenu(t(KeyAccount),
		fyne.NewMenuItem(t(KeyLogin), ui.showLogin),
		fyne.NewMenuItem(t(KeyLogout), ui.confirmLogout),
	)

	languageMenu := fyne.NewMenu(t(KeyLanguage))
	for code, name := range ui.localization.GetAvailableLanguages() {
		langCode := code
		item := fyne.NewMenuItem(name, func() { ui.onLanguageChange(langCode) })
		item.Checked = ui.localization.GetCurrentLanguage() == code
		languageMenu.Items = append(languageMenu.Items, item)
	}

	ui.window.SetMainMenu(fyne.NewMainMenu(fileMenu, accountMenu, languageMenu))
}

// onLanguageChange switches language and rebuilds the widgets
func (ui *RootUI) onLanguageChange(langCode string) {
	ui.localization.SetLanguage(langCode)
	ui.svc.Settings.SetLanguage(langCode)
	ui.window.SetTitle(ui.localization.GetText(KeyAppTitle))
	ui.setupUI()
	ui.updateAccount(ui.svc.Sessions.Snapshot())
}

// showNotification displays a message under the URL row. When spinning is
// true a spinner indicates background activity.
func (ui *RootUI) showNotification(message string, spinning bool) {
	ui.notification.SetText(message)
	if spinning {
		ui.spinner.Show()
	} else {
		ui.spinner.Hide()
	}
}

// showResult reports an export pipeline result
func (ui *RootUI) showResult(res export.Result) {
	if res.OK() {
		ui.showNotification(res.Message, false)
		return
	}
	if errors.Is(res.Err, export.ErrCancelled) {
		return
	}
	dialog.ShowError(errors.New(res.Message), ui.window)
}

// onAnalyze resolves the entered reference and loads its streams
func (ui *RootUI) onAnalyze() {
	input := strings.TrimSpace(ui.urlEntry.Text)
	if input == "" {
		ui.showNotification(ui.localization.GetText(KeyPleaseEnterURL), false)
		return
	}
	if _, ok := bilibili.ExtractVideoID(input); !ok {
		ui.showNotification(ui.localization.GetText(KeyInvalidURL), false)
		return
	}

	ui.clearAnalysis()
	ui.current = input
	ui.analyzeBtn.Disable()
	ui.showNotification(ui.localization.GetText(KeyAnalyzing), true)

	credential := ui.svc.Sessions.Credential()
	go func() {
		ctx, cancel := context.WithTimeout(ui.ctx, AnalyzeTimeout)
		defer cancel()
		meta, streams, err := ui.analyze(ctx, input, credential)
		fyne.Do(func() {
			ui.analyzeBtn.Enable()
			if input != ui.current {
				return
			}
			ui.applyAnalysis(meta, streams, err)
		})
	}()
}

func (ui *RootUI) analyze(ctx context.Context, input, credential string) (*model.VideoMetadata, *model.StreamOptions, error) {
	id, err := ui.svc.API.ResolveVideoID(ctx, input)
	if err != nil {
		return nil, nil, err
	}
	meta, err := ui.svc.API.GetVideoInfo(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	streams, err := ui.svc.API.GetVideoStreams(ctx, meta.BVID, meta.FirstPageCID(), credential)
	if err != nil {
		return meta, nil, err
	}
	return meta, streams, nil
}

func (ui *RootUI) applyAnalysis(meta *model.VideoMetadata, streams *model.StreamOptions, err error) {
	t := ui.localization.GetText
	if meta != nil {
		ui.meta = meta
		ui.videoTitle.SetText(cleanText(meta.Title) + MiddleDotSeparator + meta.DurationString())
	}
	if err != nil {
		ui.logger.Warn().Err(err).Msg("analyze failed")
		msg := t(KeyAnalyzeFailed) + ": " + apperr.UserMessage(err)
		if apperr.Is(err, apperr.KindAuth) {
			msg = t(KeyLoginForStreams)
		}
		ui.showNotification(msg, false)
		return
	}

	ui.choice = newQualityChoice(streams)
	ui.videoSelect.SetOptions(ui.choice.videoLabels)
	if i := ui.choice.preferredVideo(ui.svc.Settings.GetQualityPreset()); i >= 0 {
		ui.videoSelect.SetSelectedIndex(i)
	}
	ui.audioSelect.SetOptions(append(append([]string{}, ui.choice.audioLabels...), t(KeyNoAudio)))
	ui.audioSelect.SetSelectedIndex(0)
	ui.downloadBtn.Enable()
	ui.showNotification("", false)
}

func (ui *RootUI) clearAnalysis() {
	ui.meta = nil
	ui.choice = nil
	ui.videoTitle.SetText("")
	ui.videoSelect.SetOptions(nil)
	ui.videoSelect.ClearSelected()
	ui.audioSelect.SetOptions(nil)
	ui.audioSelect.ClearSelected()
	ui.downloadBtn.Disable()
}

// onDownload queues the analyzed video and starts it
func (ui *RootUI) onDownload() {
	if ui.meta == nil || ui.choice == nil {
		return
	}
	sel, ok := ui.choice.selection(ui.videoSelect.Selected, ui.audioSelect.Selected)
	if !ok {
		ui.showNotification(ui.localization.GetText(KeyVideoQuality)+"?", false)
		return
	}
	item := ui.svc.Queue.NewItem(ui.current, ui.meta, sel)
	if err := ui.svc.Queue.AddItem(item); err != nil {
		dialog.ShowError(err, ui.window)
		return
	}
	ui.showNotification(ui.localization.GetText(KeyDownloadStarted), false)
	ui.start(item.ID)
}

// start runs one download in the background
func (ui *RootUI) start(id string) {
	go func() {
		if err := ui.svc.Queue.ExecuteDownload(ui.ctx, id); err != nil {
			ui.logger.Warn().Err(err).Str(xlog.FieldItemID, id).Msg("download failed")
			msg := ui.localization.GetText(KeyDownloadFailed) + ": " + apperr.UserMessage(err)
			fyne.Do(func() { ui.showNotification(msg, false) })
		}
	}()
}

// onStartItem starts a pending item or retries a failed one
func (ui *RootUI) onStartItem(id string) {
	item, ok := ui.svc.Queue.Get(id)
	if !ok {
		return
	}
	if item.Status == model.DownloadStatusFailed {
		if err := ui.svc.Queue.Retry(id); err != nil {
			dialog.ShowError(err, ui.window)
			return
		}
	}
	ui.start(id)
}

// onItemChanged mirrors the queue into the list; it may run off the UI
// goroutine.
func (ui *RootUI) onItemChanged(item *model.DownloadItem) {
	items := ui.svc.Queue.Items()
	ui.itemsMu.Lock()
	ui.items = items
	ui.itemsMu.Unlock()

	completed := item.Status == model.DownloadStatusCompleted
	fyne.Do(func() {
		ui.itemList.Refresh()
		if completed {
			fyne.CurrentApp().SendNotification(&fyne.Notification{
				Title:   ui.localization.GetText(KeyDownloadCompleted),
				Content: item.GetDisplayTitle(),
			})
		}
	})
}

func (ui *RootUI) updateItemRow(id widget.ListItemID, obj fyne.CanvasObject) {
	ui.itemsMu.Lock()
	if id >= len(ui.items) {
		ui.itemsMu.Unlock()
		return
	}
	item := ui.items[id]
	ui.itemsMu.Unlock()

	row, ok := obj.(*ItemRow)
	if !ok {
		return
	}
	row.SetActions(ItemActions{
		OnStart:   ui.onStartItem,
		OnReveal:  func(path string) { ui.showResult(ui.svc.Export.RevealFile(path)) },
		OnExport:  ui.onExportFile,
		OnConvert: func(path string) { ui.pickFormat(path, transcode.VideoFormats, ui.svc.Export.ConvertFormat) },
		OnAudio:   func(path string) { ui.pickFormat(path, transcode.AudioFormats, ui.svc.Export.ExtractAudio) },
	})
	row.UpdateItem(item)
}

func (ui *RootUI) onExportFile(path string) {
	folder := ui.svc.Settings.GetExportFolder()
	if folder == "" {
		ui.chooseExportFolder(func() { ui.showResult(ui.svc.Export.ExportToFolder(path, ui.svc.Settings.GetExportFolder(), "")) })
		return
	}
	ui.showResult(ui.svc.Export.ExportToFolder(path, folder, ""))
}

// onExportCompleted exports every completed download
func (ui *RootUI) onExportCompleted() {
	var paths []string
	for _, item := range ui.svc.Queue.Items() {
		if item.Status == model.DownloadStatusCompleted && item.OutputPath != "" {
			paths = append(paths, item.OutputPath)
		}
	}
	ui.showResult(ui.svc.Export.BatchExport(paths, ui.svc.Settings.GetExportFolder()))
}

// pickFormat asks for a target format and runs op in the background
func (ui *RootUI) pickFormat(path string, formats []string, op func(context.Context, string, string) export.Result) {
	sel := widget.NewSelect(formats, nil)
	sel.SetSelectedIndex(0)
	dialog.ShowForm(ui.localization.GetText(KeyFormat), ui.localization.GetText(KeyConvert), ui.localization.GetText(KeyCancel),
		[]*widget.FormItem{widget.NewFormItem(ui.localization.GetText(KeyFormat), sel)},
		func(ok bool) {
			if !ok {
				return
			}
			format := sel.Selected
			ui.showNotification(filepath.Base(path)+" → "+format, true)
			go func() {
				res := op(ui.ctx, path, format)
				fyne.Do(func() { ui.showResult(res) })
			}()
		}, ui.window)
}

func (ui *RootUI) onChooseExportFolder() {
	ui.chooseExportFolder(nil)
}

// chooseExportFolder opens a folder chooser starting at the default export
// folder and remembers the choice.
func (ui *RootUI) chooseExportFolder(then func()) {
	d := dialog.NewFolderOpen(func(uri fyne.ListableURI, err error) {
		chosen := ""
		if err == nil && uri != nil {
			chosen = uri.Path()
		}
		res := ui.svc.Export.SelectExportFolder(chosen)
		ui.showResult(res)
		if !res.OK() {
			return
		}
		ui.svc.Settings.SetExportFolder(res.Path)
		if then != nil {
			then()
		}
	}, ui.window)
	if start := ui.svc.Export.DefaultExportFolder(); start != "" {
		if lister, err := listableURI(start); err == nil {
			d.SetLocation(lister)
		}
	}
	d.Show()
}

func listableURI(path string) (fyne.ListableURI, error) {
	return storage.ListerForURI(storage.NewFileURI(path))
}

// onShowSettings shows the settings dialog
func (ui *RootUI) onShowSettings() {
	ShowSettingsDialog(ui.window, ui.svc.Settings, ui.localization, func() {
		ui.showNotification(ui.localization.GetText(KeySettingsSaved), false)
	})
}

func (ui *RootUI) onAccount() {
	if ui.svc.Sessions.IsLoggedIn() {
		ui.confirmLogout()
		return
	}
	ui.showLogin()
}

func (ui *RootUI) showLogin() {
	if ui.svc.Sessions.IsLoggedIn() {
		return
	}
	ui.loginDlg = NewLoginDialog(ui.window, ui.svc.Login, ui.localization, ui.logger)
	ui.loginDlg.Show()
}

func (ui *RootUI) confirmLogout() {
	if !ui.svc.Sessions.IsLoggedIn() {
		return
	}
	dialog.ShowConfirm(ui.localization.GetText(KeyLogout), ui.localization.GetText(KeyLogoutConfirm), func(ok bool) {
		if ok {
			ui.svc.Sessions.Clear(ui.ctx)
		}
	}, ui.window)
}

// updateAccount shows the logged in user on the account button
func (ui *RootUI) updateAccount(s model.Session) {
	if ui.accountBtn == nil {
		return
	}
	label := IconUser + " " + ui.localization.GetText(KeyLogin)
	if s.LoggedIn {
		name := ui.localization.GetText(KeyAccount)
		if s.Profile != nil && s.Profile.Name != "" {
			name = s.Profile.Name
		}
		label = IconUser + " " + name
	}
	ui.accountBtn.SetText(label)
}
