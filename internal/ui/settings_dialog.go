package ui

import (
	"sort"
	"strconv"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"github.com/ytget/cilicili/internal/config"
)

// SettingsDialog represents the settings configuration dialog
type SettingsDialog struct {
	settings     *config.Settings
	localization *Localization
	window       fyne.Window
	dialog       *dialog.ConfirmDialog
	onSaved      func()

	downloadDirEntry  *widget.Entry
	exportFolderEntry *widget.Entry
	qualitySelect     *widget.Select
	languageSelect    *widget.Select
	pollEntry         *widget.Entry
	storageSelect     *widget.Select
	ffmpegEntry       *widget.Entry
}

// ShowSettingsDialog opens the settings dialog; onSaved runs after a save
func ShowSettingsDialog(window fyne.Window, settings *config.Settings, localization *Localization, onSaved func()) {
	sd := &SettingsDialog{
		settings:     settings,
		localization: localization,
		window:       window,
		onSaved:      onSaved,
	}
	sd.createUI()
	sd.loadCurrentSettings()
	sd.dialog.Show()
}

// createUI creates the settings dialog UI
func (sd *SettingsDialog) createUI() {
	t := sd.localization.GetText

	sd.downloadDirEntry = widget.NewEntry()
	sd.exportFolderEntry = widget.NewEntry()
	downloadRow := container.NewBorder(nil, nil, nil,
		widget.NewButton(t(KeyBrowse), func() { sd.browse(sd.downloadDirEntry) }), sd.downloadDirEntry)
	exportRow := container.NewBorder(nil, nil, nil,
		widget.NewButton(t(KeyBrowse), func() { sd.browse(sd.exportFolderEntry) }), sd.exportFolderEntry)

	var qualityOptions []string
	for _, preset := range sd.settings.GetQualityPresetOptions() {
		qualityOptions = append(qualityOptions, string(preset))
	}
	sd.qualitySelect = widget.NewSelect(qualityOptions, nil)

	var languageOptions []string
	for code := range sd.settings.GetLanguageOptions() {
		languageOptions = append(languageOptions, code)
	}
	sort.Strings(languageOptions)
	sd.languageSelect = widget.NewSelect(languageOptions, nil)

	sd.pollEntry = widget.NewEntry()
	sd.pollEntry.SetPlaceHolder("1-10")

	sd.storageSelect = widget.NewSelect([]string{
		string(config.SessionInPreferences),
		string(config.SessionEncryptedFile),
	}, nil)

	sd.ffmpegEntry = widget.NewEntry()
	sd.ffmpegEntry.SetPlaceHolder("ffmpeg")

	form := widget.NewForm(
		widget.NewFormItem(t(KeyDownloadDirectory), downloadRow),
		widget.NewFormItem(t(KeyExportFolder), exportRow),
		widget.NewFormItem(t(KeyQualityPreset), sd.qualitySelect),
		widget.NewFormItem(t(KeyLanguage), sd.languageSelect),
		widget.NewFormItem(t(KeyPollInterval), sd.pollEntry),
		widget.NewFormItem(t(KeySessionStorage), sd.storageSelect),
		widget.NewFormItem(t(KeyFFmpegPath), sd.ffmpegEntry),
	)

	sd.dialog = dialog.NewCustomConfirm(t(KeySettings), t(KeySave), t(KeyCancel), form, sd.onSave, sd.window)
	sd.dialog.Resize(fyne.NewSize(560, 420))
}

// loadCurrentSettings loads current settings into the UI
func (sd *SettingsDialog) loadCurrentSettings() {
	sd.downloadDirEntry.SetText(sd.settings.GetDownloadDirectory())
	sd.exportFolderEntry.SetText(sd.settings.GetExportFolder())
	sd.qualitySelect.SetSelected(string(sd.settings.GetQualityPreset()))
	sd.languageSelect.SetSelected(sd.settings.GetLanguage())
	sd.pollEntry.SetText(strconv.FormatFloat(sd.settings.GetPollInterval().Seconds(), 'f', -1, 64))
	sd.storageSelect.SetSelected(string(sd.settings.GetSessionStorage()))
	sd.ffmpegEntry.SetText(sd.settings.GetFFmpegPath())
}

func (sd *SettingsDialog) browse(target *widget.Entry) {
	dialog.ShowFolderOpen(func(uri fyne.ListableURI, err error) {
		if err != nil || uri == nil {
			return
		}
		target.SetText(uri.Path())
	}, sd.window)
}

// onSave handles saving the settings
func (sd *SettingsDialog) onSave(confirmed bool) {
	if !confirmed {
		return
	}

	if dir := sd.downloadDirEntry.Text; dir != "" {
		sd.settings.SetDownloadDirectory(dir)
	}
	sd.settings.SetExportFolder(sd.exportFolderEntry.Text)
	if sd.qualitySelect.Selected != "" {
		sd.settings.SetQualityPreset(config.QualityPreset(sd.qualitySelect.Selected))
	}
	if sd.languageSelect.Selected != "" {
		sd.settings.SetLanguage(sd.languageSelect.Selected)
	}
	if secs, err := strconv.ParseFloat(sd.pollEntry.Text, 64); err == nil {
		sd.settings.SetPollInterval(time.Duration(secs * float64(time.Second)))
	}
	if sd.storageSelect.Selected != "" {
		sd.settings.SetSessionStorage(config.SessionStorage(sd.storageSelect.Selected))
	}
	sd.settings.SetFFmpegPath(sd.ffmpegEntry.Text)

	if sd.onSaved != nil {
		sd.onSaved()
	}
}
