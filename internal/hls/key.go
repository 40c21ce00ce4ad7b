// SPDX-License-Identifier: MIT

package hls

import (
	"encoding/hex"
	"strings"
)

// Method is an HLS encryption method from the METHOD attribute of
// #EXT-X-KEY.
type Method string

const (
	MethodNone          Method = "NONE"
	MethodAES128        Method = "AES-128"
	MethodSampleAES     Method = "SAMPLE-AES"
	MethodSampleAESCTR  Method = "SAMPLE-AES-CTR"
	MethodSampleAESCENC Method = "SAMPLE-AES-CENC"
)

// ParseMethod normalises a METHOD attribute value. Unknown methods are kept
// as-is so the tag can round-trip.
func ParseMethod(s string) Method {
	return Method(strings.ToUpper(strings.TrimSpace(s)))
}

// RequiresProxyDecrypt reports whether segments under this method must be
// decrypted by the proxy. AES-128 is never included: players handle it
// natively.
func (m Method) RequiresProxyDecrypt() bool {
	switch m {
	case MethodSampleAES, MethodSampleAESCTR, MethodSampleAESCENC:
		return true
	}
	return false
}

// SegmentParam maps the method to the /segment "m" query parameter. The
// empty string means the method is not proxied.
func (m Method) SegmentParam() string {
	switch m {
	case MethodSampleAES:
		return "ssa"
	case MethodSampleAESCTR:
		return "ssa-ctr"
	case MethodSampleAESCENC:
		return "cenc"
	}
	return ""
}

// CENC key format identifiers seen in the KEYFORMAT attribute. An AES-128
// method combined with one of these is Common Encryption in disguise and is
// handled by the cenc path.
var cencKeyFormats = []string{
	"urn:uuid:edef8ba9-79d6-4ace-a3c8-27dcd51d21ed", // Widevine
	"urn:uuid:9a04f079-9840-4286-ab92-e65be0885f95", // PlayReady
	"urn:mpeg:cenc:2013",
}

// Key is the parsed content of an #EXT-X-KEY (or #EXT-X-SESSION-KEY) tag.
// IV, when present, is exactly 16 bytes.
type Key struct {
	Method            Method
	URI               string
	IV                []byte
	Keyformat         string
	Keyformatversions string
}

// ParseKey extracts key context from a classified #EXT-X-KEY line.
// METHOD=NONE clears URI and IV per the playlist state rules.
func ParseKey(line Line) Key {
	attrs := line.Attrs()
	k := Key{Method: MethodNone}

	if v, ok := attrs.Get("METHOD"); ok {
		k.Method = ParseMethod(v)
	}
	if k.Method == MethodNone {
		return k
	}
	if v, ok := attrs.Get("URI"); ok {
		k.URI = v
	}
	if v, ok := attrs.Get("IV"); ok {
		if iv, err := parseIVAttr(v); err == nil {
			k.IV = iv
		}
	}
	if v, ok := attrs.Get("KEYFORMAT"); ok {
		k.Keyformat = v
	}
	if v, ok := attrs.Get("KEYFORMATVERSIONS"); ok {
		k.Keyformatversions = v
	}
	return k
}

// IsCENCKeyFormat reports whether the KEYFORMAT marks this key as Common
// Encryption.
func (k Key) IsCENCKeyFormat() bool {
	lower := strings.ToLower(k.Keyformat)
	for _, f := range cencKeyFormats {
		if lower == f {
			return true
		}
	}
	return false
}

// ProxyMethod maps the key to the /segment "m" parameter, accounting for
// AES-128 that is really CENC per the key format.
func (k Key) ProxyMethod() string {
	if k.Method == MethodAES128 && k.IsCENCKeyFormat() {
		return "cenc"
	}
	return k.Method.SegmentParam()
}

func parseIVAttr(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	iv, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(iv) != 16 {
		return nil, errIVLength
	}
	return iv, nil
}
