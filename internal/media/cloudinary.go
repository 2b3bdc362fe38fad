package media

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const defaultCloudinaryFolder = "products"

// Cloudinary uploads product images with signed requests to the image
// upload endpoint of one cloud.
type Cloudinary struct {
	folder     string
	apiKey     string
	apiSecret  string
	uploadURL  string
	httpClient *http.Client
	now        func() time.Time
}

// NewCloudinary reads credentials from a CLOUDINARY_URL of the form
// cloudinary://<key>:<secret>@<cloud>.
func NewCloudinary(rawURL, folder string) (*Cloudinary, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse cloudinary url: %w", err)
	}
	if parsed.Scheme != "cloudinary" {
		return nil, errors.New("cloudinary url must use the cloudinary:// scheme")
	}

	apiSecret, _ := parsed.User.Password()
	c := &Cloudinary{
		folder:     strings.Trim(strings.TrimSpace(folder), "/"),
		apiKey:     parsed.User.Username(),
		apiSecret:  apiSecret,
		uploadURL:  "https://api.cloudinary.com/v1_1/" + parsed.Hostname() + "/image/upload",
		httpClient: &http.Client{Timeout: 20 * time.Second},
		now:        time.Now,
	}
	if c.apiKey == "" || c.apiSecret == "" || parsed.Hostname() == "" {
		return nil, errors.New("cloudinary url needs api key, api secret and cloud name")
	}
	if c.folder == "" {
		c.folder = defaultCloudinaryFolder
	}
	return c, nil
}

// UploadImage stores the image under a random public id in the configured
// folder and returns its secure_url.
func (c *Cloudinary) UploadImage(ctx context.Context, image Image) (string, error) {
	if len(image.Data) == 0 {
		return "", errors.New("empty image")
	}

	params := map[string]string{
		"folder":    c.folder,
		"public_id": uuid.NewString(),
		"timestamp": strconv.FormatInt(c.now().Unix(), 10),
	}
	body, contentType, err := c.uploadBody(params, image)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, body)
	if err != nil {
		return "", fmt.Errorf("build cloudinary request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("cloudinary upload: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		SecureURL string `json:"secure_url"`
		Error     struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&result); err != nil {
		return "", fmt.Errorf("decode cloudinary response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("cloudinary upload: status %d: %s", resp.StatusCode, result.Error.Message)
	}
	if result.SecureURL == "" {
		return "", errors.New("cloudinary response missing secure_url")
	}
	return result.SecureURL, nil
}

// uploadBody writes the signed parameters and the raw image as one
// multipart form.
func (c *Cloudinary) uploadBody(params map[string]string, image Image) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	fields := map[string]string{"api_key": c.apiKey, "signature": c.sign(params)}
	for key, value := range params {
		fields[key] = value
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", fmt.Errorf("write %s field: %w", key, err)
		}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="image%s"`, image.Extension))
	header.Set("Content-Type", image.ContentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(image.Data); err != nil {
		return nil, "", fmt.Errorf("write file part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}

// sign is the SHA-1 of the key-sorted "k=v&k=v" parameters followed by the
// API secret.
func (c *Cloudinary) sign(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	pairs := make([]string, len(keys))
	for i, key := range keys {
		pairs[i] = key + "=" + params[key]
	}

	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + c.apiSecret)) // #nosec G401: required by the Cloudinary API.
	return hex.EncodeToString(sum[:])
}
