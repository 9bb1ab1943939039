package transaction

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	qrcode "github.com/skip2/go-qrcode"

	"ticketly/internal/models"
)

// entryPassPNG encodes a signed claim of the transaction into a QR image
// so gate scanners can verify the pass offline.
func (s *Service) entryPassPNG(trx *models.Transaction) ([]byte, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": trx.UserID,
		"trx": trx.TransactionID,
		"evt": trx.EventID,
		"qty": trx.Qty,
		"iat": s.Now().Unix(),
	})
	signed, err := token.SignedString([]byte(s.QRSecret))
	if err != nil {
		return nil, fmt.Errorf("sign entry pass for %s: %w", trx.TransactionID, err)
	}

	png, err := qrcode.Encode(signed, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("encode entry pass QR: %w", err)
	}
	return png, nil
}

// VerifyEntryPass parses a scanned pass back into its transaction id.
func (s *Service) VerifyEntryPass(payload string) (string, error) {
	token, err := jwt.Parse(payload, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.QRSecret), nil
	}, jwt.WithIssuedAt(), jwt.WithValidMethods([]string{"HS256"}), jwt.WithLeeway(time.Minute))
	if err != nil || !token.Valid {
		return "", fmt.Errorf("invalid entry pass: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid entry pass claims")
	}
	trxID, _ := claims["trx"].(string)
	if trxID == "" {
		return "", fmt.Errorf("entry pass carries no transaction")
	}
	return trxID, nil
}
