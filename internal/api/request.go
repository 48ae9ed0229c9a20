package api

import (
	"bytes"
	"cmp"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/glimpse/internal/imageproc"
)

// answerInput is a parsed POST /v1/answers body.
type answerInput struct {
	question string
	img      image.Image
	stream   bool
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}

// parseAnswerRequest accepts either multipart/form-data (fields image,
// question, stream and optionally width/height/channels for a raw pixel
// upload) or a JSON AnswerRequest.
func parseAnswerRequest(c *echo.Context, maxBytes int64) (answerInput, error) {
	req := c.Request()
	if maxBytes > 0 {
		req.Body = http.MaxBytesReader(c.Response(), req.Body, maxBytes)
	}
	mediaType, _, _ := mime.ParseMediaType(req.Header.Get(echo.HeaderContentType))
	switch mediaType {
	case echo.MIMEMultipartForm:
		return parseMultipart(req, maxBytes)
	case echo.MIMEApplicationJSON, "":
		body, err := decodeJSON[AnswerRequest](req.Body)
		if err != nil {
			return answerInput{}, newInvalidRequest(fmt.Sprintf("invalid JSON body: %v", bodyError(err)))
		}
		return body.input()
	default:
		return answerInput{}, newInvalidRequest(fmt.Sprintf("unsupported content type %q", mediaType))
	}
}

func parseMultipart(req *http.Request, maxBytes int64) (answerInput, error) {
	mem := maxBytes
	if mem <= 0 {
		mem = 32 << 20
	}
	if err := req.ParseMultipartForm(mem); err != nil {
		return answerInput{}, newInvalidRequest(fmt.Sprintf("invalid multipart body: %v", bodyError(err)))
	}
	f, _, err := req.FormFile("image")
	if err != nil {
		return answerInput{}, newInvalidRequest("image file is required")
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return answerInput{}, newInvalidRequest(fmt.Sprintf("read image: %v", err))
	}

	in := answerInput{question: req.FormValue("question")}
	if v := req.FormValue("stream"); v != "" {
		in.stream, err = strconv.ParseBool(v)
		if err != nil {
			return answerInput{}, newInvalidRequest("stream must be a boolean")
		}
	}
	if req.FormValue("width") != "" {
		w, werr := strconv.Atoi(req.FormValue("width"))
		h, herr := strconv.Atoi(req.FormValue("height"))
		ch, cerr := strconv.Atoi(cmp.Or(req.FormValue("channels"), "4"))
		if err := errors.Join(werr, herr, cerr); err != nil {
			return answerInput{}, newInvalidRequest("width, height and channels must be integers")
		}
		in.img, err = rawImage(w, h, ch, data)
	} else {
		in.img, err = encodedImage(data)
	}
	if err != nil {
		return answerInput{}, err
	}
	return in, nil
}

func (r AnswerRequest) input() (answerInput, error) {
	in := answerInput{question: r.Question, stream: r.Stream != nil && *r.Stream}
	switch {
	case r.Image != "" && r.Pixels != "":
		return in, newInvalidRequest("image and pixels are mutually exclusive")
	case r.Image != "":
		data, err := base64.StdEncoding.DecodeString(r.Image)
		if err != nil {
			return in, newInvalidRequest("image must be base64")
		}
		in.img, err = encodedImage(data)
		return in, err
	case r.Pixels != "":
		data, err := base64.StdEncoding.DecodeString(r.Pixels)
		if err != nil {
			return in, newInvalidRequest("pixels must be base64")
		}
		in.img, err = rawImage(r.Width, r.Height, cmp.Or(r.Channels, 4), data)
		return in, err
	default:
		return in, newInvalidRequest("image or pixels is required")
	}
}

func encodedImage(data []byte) (image.Image, error) {
	img, _, err := imageproc.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, newInvalidRequest(err.Error())
	}
	return img, nil
}

func rawImage(w, h, ch int, data []byte) (image.Image, error) {
	img, err := imageproc.FromRaw(w, h, ch, data)
	if err != nil {
		return nil, newInvalidRequest(err.Error())
	}
	return img, nil
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return fmt.Errorf("body exceeds %d bytes", tooLarge.Limit)
	}
	return err
}

