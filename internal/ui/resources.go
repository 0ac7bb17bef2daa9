package ui

import (
	"fmt"

	"fyne.io/fyne/v2"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	AppIcon = "cilicili.png"
)

// LoadLogoResource loads the logo from file path
func LoadLogoResource() (fyne.Resource, error) {
	return fyne.LoadResourceFromPath(AppIcon)
}

// qrResource renders content as a PNG QR code
func qrResource(name, content string) (fyne.Resource, error) {
	png, err := qrcode.Encode(content, qrcode.Medium, QRCodeSize)
	if err != nil {
		return nil, fmt.Errorf("encode qr code: %w", err)
	}
	return fyne.NewStaticResource(name, png), nil
}
