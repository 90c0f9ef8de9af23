package rewrite

import (
	"bytes"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
)

// minDetectConfidence is the chardet confidence required to trust a guess.
const minDetectConfidence = 50

// prescanLen is how much of the document is searched for a <meta> charset.
const prescanLen = 1024

// ToUTF8 converts an HTML body to UTF-8. The declared charset and any <meta>
// declaration win; statistical detection is only consulted for bodies that are
// neither declared nor valid UTF-8. transcoded is false when body is returned as is.
func ToUTF8(body []byte, contentType string) (out []byte, transcoded bool, err error) {
	enc, name, certain := charset.DetermineEncoding(body, contentType)
	if !certain && metaCharset(body) == "" {
		if utf8.Valid(body) {
			return body, false, nil
		}
		if res, derr := chardet.NewHtmlDetector().DetectBest(body); derr == nil && res.Confidence >= minDetectConfidence {
			if e, n := charset.Lookup(res.Charset); e != nil {
				enc, name = e, n
			}
		}
	}
	if name == "utf-8" {
		return body, false, nil
	}

	out, err = enc.NewDecoder().Bytes(body)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// metaCharset returns the charset named by a <meta charset> or
// <meta http-equiv="Content-Type"> element near the top of body, or "" when
// there is none or it names an unknown encoding.
func metaCharset(body []byte) string {
	d, err := goquery.NewDocumentFromReader(bytes.NewReader(body[:min(len(body), prescanLen)]))
	if err != nil {
		return ""
	}

	var label string
	d.Find("meta").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if v, ok := s.Attr("charset"); ok {
			label = v
			return false
		}
		if strings.EqualFold(s.AttrOr("http-equiv", ""), "content-type") {
			if _, params, perr := mime.ParseMediaType(s.AttrOr("content", "")); perr == nil && params["charset"] != "" {
				label = params["charset"]
				return false
			}
		}
		return true
	})

	if e, _ := charset.Lookup(label); e == nil {
		return ""
	}
	return label
}

func withUTF8Charset(contentType string) string {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType == "" {
		mediaType, params = "text/html", nil
	}
	if params == nil {
		params = map[string]string{}
	}
	params["charset"] = "utf-8"
	return mime.FormatMediaType(mediaType, params)
}
