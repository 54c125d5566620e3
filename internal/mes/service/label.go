package service

import (
	"encoding/base64"
	"fmt"

	"github.com/skip2/go-qrcode"
)

// Label 打印标签用的零件信息和二维码
type Label struct {
	PartID             string `json:"part_id"`
	Name               string `json:"name"`
	ProductDesignation string `json:"product_designation"`
	QRCode             string `json:"qr_code"` // base64 PNG
}

const qrSize = 256

// QRCodeBase64 把内容编码为 base64 PNG 二维码
func QRCodeBase64(content string) (string, error) {
	png, err := qrcode.Encode(content, qrcode.Medium, qrSize)
	if err != nil {
		return "", fmt.Errorf("encode qr code: %w", err)
	}
	return base64.StdEncoding.EncodeToString(png), nil
}
