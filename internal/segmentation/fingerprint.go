package segmentation

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"mart-segments/internal/models"
)

// Fingerprint hashes the fields of records that feed the pipeline, in order.
// Two tables with the same fingerprint produce the same features.
func Fingerprint(records []models.Transaction) string {
	h := sha256.New()
	buf := make([]byte, 0, 256)
	num := func(v float64) { buf = strconv.AppendFloat(buf, v, 'g', -1, 64); buf = append(buf, 0x1f) }
	str := func(s string) { buf = append(buf, s...); buf = append(buf, 0x1f) }

	for _, tx := range records {
		buf = buf[:0]
		str(tx.ItemID)
		if tx.ItemWeight.Valid {
			num(tx.ItemWeight.Value)
		} else {
			str("NA")
		}
		str(tx.ItemFatContent)
		num(tx.ItemVisibility)
		str(tx.ItemType)
		num(tx.ItemMRP)
		str(tx.OutletID)
		buf = strconv.AppendInt(buf, int64(tx.OutletYear), 10)
		buf = append(buf, 0x1f)
		str(tx.OutletSize)
		str(tx.OutletLocation)
		str(tx.OutletType)
		num(tx.ItemOutletSales)
		buf = append(buf, 0x1e)
		h.Write(buf)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// RowsDigest hashes what Fingerprint leaves out: source row numbers and
// pass-through cells. It changes the original-table artifact but not the
// features.
func RowsDigest(records []models.Transaction) string {
	h := sha256.New()
	buf := make([]byte, 0, 64)
	for _, tx := range records {
		buf = strconv.AppendInt(buf[:0], int64(tx.SourceRowNumber), 10)
		buf = append(buf, 0x1f)
		for _, cell := range tx.Extra {
			buf = append(buf, cell...)
			buf = append(buf, 0x1f)
		}
		buf = append(buf, 0x1e)
		h.Write(buf)
	}
	return hex.EncodeToString(h.Sum(nil))
}
