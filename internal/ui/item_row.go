package ui

import (
	"fmt"
	"image/color"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"github.com/ytget/cilicili/internal/model"
)

// ItemActions are the callbacks behind the row buttons
type ItemActions struct {
	OnStart   func(id string)
	OnReveal  func(path string)
	OnExport  func(path string)
	OnConvert func(path string)
	OnAudio   func(path string)
}

// ItemRow renders one queue entry
type ItemRow struct {
	widget.BaseWidget

	item         *model.DownloadItem
	localization *Localization
	actions      ItemActions

	titleLabel    *widget.Label
	statusLabel   *widget.Label
	progressLabel *widget.Label
	progressBar   *widget.ProgressBar
	errorLabel    *widget.Label

	startBtn   *widget.Button
	revealBtn  *widget.Button
	exportBtn  *widget.Button
	convertBtn *widget.Button
	audioBtn   *widget.Button
}

// NewItemRow creates a row for item
func NewItemRow(item *model.DownloadItem, localization *Localization) *ItemRow {
	if item == nil {
		item = &model.DownloadItem{Status: model.DownloadStatusPending}
	}
	r := &ItemRow{item: item, localization: localization}
	r.ExtendBaseWidget(r)
	r.createUI()
	r.updateFromItem()
	return r
}

// SetActions sets the button callbacks
func (r *ItemRow) SetActions(actions ItemActions) {
	r.actions = actions
}

// UpdateItem shows a new snapshot of the item
func (r *ItemRow) UpdateItem(item *model.DownloadItem) {
	if item == nil {
		return
	}
	r.item = item
	r.updateFromItem()
	r.Refresh()
}

func (r *ItemRow) createUI() {
	r.titleLabel = widget.NewLabel("")
	r.titleLabel.TextStyle = fyne.TextStyle{Bold: true}
	r.titleLabel.Truncation = fyne.TextTruncateEllipsis

	r.statusLabel = widget.NewLabel("")
	r.statusLabel.Alignment = fyne.TextAlignTrailing
	r.progressLabel = widget.NewLabel("")
	r.progressLabel.Alignment = fyne.TextAlignTrailing
	r.progressBar = widget.NewProgressBar()
	r.progressBar.TextFormatter = func() string { return "" }
	r.errorLabel = widget.NewLabel("")
	r.errorLabel.Importance = widget.DangerImportance
	r.errorLabel.Truncation = fyne.TextTruncateEllipsis

	withPath := func(fn *func(string)) func() {
		return func() {
			if *fn != nil && r.item.OutputPath != "" {
				(*fn)(r.item.OutputPath)
			}
		}
	}

	r.startBtn = widget.NewButton(IconPlay, func() {
		if r.actions.OnStart != nil {
			r.actions.OnStart(r.item.ID)
		}
	})
	r.revealBtn = widget.NewButton(IconFolder, withPath(&r.actions.OnReveal))
	r.exportBtn = widget.NewButton(r.localization.GetText(KeyExport), withPath(&r.actions.OnExport))
	r.convertBtn = widget.NewButton(r.localization.GetText(KeyConvert), withPath(&r.actions.OnConvert))
	r.audioBtn = widget.NewButton(r.localization.GetText(KeyExtractAudio), withPath(&r.actions.OnAudio))
	for _, b := range []*widget.Button{r.startBtn, r.revealBtn, r.exportBtn, r.convertBtn, r.audioBtn} {
		b.Importance = widget.LowImportance
	}
}

func (r *ItemRow) updateFromItem() {
	r.titleLabel.SetText(cleanText(r.item.GetDisplayTitle()))
	r.statusLabel.Importance, r.statusLabel.Text = statusDisplay(r.item.Status)
	r.statusLabel.Refresh()

	progress := min(max(r.item.Progress, 0), 100)
	r.progressBar.SetValue(float64(progress) / 100)
	if r.item.Status == model.DownloadStatusDownloading {
		r.progressLabel.SetText(fmt.Sprintf(ProgressLabelFormat, progress))
	} else {
		r.progressLabel.SetText("")
	}

	if r.item.Status == model.DownloadStatusFailed && r.item.LastError != "" {
		r.errorLabel.SetText(cleanText(r.item.LastError))
		r.errorLabel.Show()
	} else {
		r.errorLabel.Hide()
	}

	r.updateButtons()
}

// updateButtons enables actions by status
func (r *ItemRow) updateButtons() {
	switch r.item.Status {
	case model.DownloadStatusPending:
		r.startBtn.SetText(IconPlay)
		r.startBtn.Enable()
	case model.DownloadStatusFailed:
		r.startBtn.SetText(IconRetry)
		r.startBtn.Enable()
	default:
		r.startBtn.SetText(IconPlay)
		r.startBtn.Disable()
	}

	done := r.item.Status == model.DownloadStatusCompleted && r.item.OutputPath != ""
	for _, b := range []*widget.Button{r.revealBtn, r.exportBtn, r.convertBtn, r.audioBtn} {
		if done {
			b.Enable()
		} else {
			b.Disable()
		}
	}
}

// statusDisplay maps a status to label importance and text
func statusDisplay(s model.DownloadStatus) (widget.Importance, string) {
	switch s {
	case model.DownloadStatusFailed:
		return widget.DangerImportance, IconError + " " + s.String()
	case model.DownloadStatusCompleted:
		return widget.SuccessImportance, IconDone + " " + s.String()
	case model.DownloadStatusDownloading:
		return widget.HighImportance, IconPlay + " " + s.String()
	case model.DownloadStatusPending:
		return widget.MediumImportance, IconPending + " " + s.String()
	default:
		return widget.MediumImportance, s.String()
	}
}

// cleanText flattens control whitespace that breaks single line labels
func cleanText(s string) string {
	return strings.TrimSpace(strings.NewReplacer("\n", " ", "\r", " ", "\t", " ").Replace(s))
}

// CreateRenderer creates the widget renderer
func (r *ItemRow) CreateRenderer() fyne.WidgetRenderer {
	fixedWidth := func(w float32, obj fyne.CanvasObject) fyne.CanvasObject {
		spacer := canvas.NewRectangle(color.Transparent)
		spacer.SetMinSize(fyne.NewSize(w, obj.MinSize().Height))
		return container.NewStack(spacer, obj)
	}

	info := container.NewHBox(
		fixedWidth(StatusLabelWidth, r.statusLabel),
		fixedWidth(PercentLabelWidth, r.progressLabel),
	)
	actions := container.NewHBox(r.startBtn, r.revealBtn, r.exportBtn, r.convertBtn, r.audioBtn)
	header := container.NewBorder(nil, nil, nil, container.NewHBox(info, actions), r.titleLabel)

	content := container.NewVBox(header, r.progressBar, r.errorLabel, widget.NewSeparator())
	return &itemRowRenderer{content: content}
}

type itemRowRenderer struct {
	content *fyne.Container
}

func (r *itemRowRenderer) Layout(size fyne.Size) {
	r.content.Resize(size)
}

func (r *itemRowRenderer) MinSize() fyne.Size {
	m := r.content.MinSize()
	return fyne.NewSize(max(m.Width, RowMinWidth), max(m.Height, RowMinHeight))
}

func (r *itemRowRenderer) Refresh() {
	r.content.Refresh()
}

func (r *itemRowRenderer) Objects() []fyne.CanvasObject {
	return []fyne.CanvasObject{r.content}
}

func (r *itemRowRenderer) Destroy() {}
