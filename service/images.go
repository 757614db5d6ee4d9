package service

import (
	"context"
	"net/http"
	"strings"
	"time"

	"cityzen/models"
	"cityzen/repository"
	"cityzen/utils"
)

// ImageStore persists image bytes and returns a URL for them.
type ImageStore interface {
	Save(ctx context.Context, img models.ImageUpload) (string, error)
	Remove(ctx context.Context, url string) error
}

type preparedImage struct {
	upload      models.ImageUpload
	fingerprint string
}

// prepareImages validates uploads and fingerprints them. Nothing is stored yet.
func prepareImages(uploads []models.ImageUpload, limit int) ([]preparedImage, error) {
	if limit > 0 && len(uploads) > limit {
		return nil, &models.ValidationError{Field: "images", Message: "too many images"}
	}
	out := make([]preparedImage, 0, len(uploads))
	for _, u := range uploads {
		if len(u.Data) == 0 {
			return nil, &models.ValidationError{Field: "images", Message: "empty image " + u.FileName}
		}
		ct := u.ContentType
		if ct == "" || ct == "application/octet-stream" {
			ct = http.DetectContentType(u.Data)
		}
		if !strings.HasPrefix(ct, "image/") {
			return nil, &models.ValidationError{Field: "images", Message: "not an image: " + u.FileName}
		}
		u.ContentType = ct
		out = append(out, preparedImage{upload: u, fingerprint: utils.ImageFingerprint(u.Data)})
	}
	return out, nil
}

// checkImageReuse fails if any fingerprint is attached to a complaint other than ownerID.
// Pass ownerID 0 for a complaint that does not exist yet.
func checkImageReuse(ctx context.Context, tx repository.ComplaintTx, imgs []preparedImage, ownerID int64) error {
	for _, img := range imgs {
		other, found, err := tx.FindImageOwner(ctx, img.fingerprint, ownerID)
		if err != nil {
			return err
		}
		if found {
			return &models.ImageReusedError{Fingerprint: img.fingerprint, ComplaintID: other}
		}
	}
	return nil
}

// attachImages stores each image and inserts its row. URLs that were written are
// appended to saved so the caller can remove them if the transaction rolls back.
func attachImages(ctx context.Context, tx repository.ComplaintTx, store ImageStore, complaintID int64, typ models.ImageType, imgs []preparedImage, at time.Time, saved *[]string) ([]models.ComplaintImage, error) {
	out := make([]models.ComplaintImage, 0, len(imgs))
	for _, img := range imgs {
		url, err := store.Save(ctx, img.upload)
		if err != nil {
			return nil, err
		}
		*saved = append(*saved, url)
		row := models.ComplaintImage{
			ComplaintID: complaintID,
			ImageType:   typ,
			URL:         url,
			Fingerprint: img.fingerprint,
			CreatedAt:   at,
		}
		if err := tx.InsertImage(ctx, &row); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

// discardImages best-effort removes files left behind by a rolled back transaction.
func discardImages(store ImageStore, urls []string) {
	for _, u := range urls {
		_ = store.Remove(context.Background(), u)
	}
}
