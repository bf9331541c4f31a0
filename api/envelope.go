/*
	Copyright (c) 2024 Tagspot
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	envelope.go: Upload endpoint response formats
*/
package api

import "encoding/json"

// envelope covers both response formats the backends answer with: the
// current one reports {isSuccess: true, status: "Ok"}, the legacy one
// {metadata: {code: "200"}}.
type envelope struct {
	IsSuccess bool   `json:"isSuccess"`
	Status    string `json:"status"`
	Metadata  struct {
		Code string `json:"code"`
	} `json:"metadata"`
	Errors           json.RawMessage `json:"errors"`
	ValidationErrors json.RawMessage `json:"validationErrors"`
}

func (e envelope) ok() bool {
	if e.IsSuccess && e.Status == "Ok" {
		return true
	}
	return e.Metadata.Code == "200"
}

// RecordPayload is one scan in the record upload body.
type RecordPayload struct {
	SiteID    string  `json:"siteId"`
	TagName   string  `json:"tagName"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Speed     int     `json:"speed"`
	DeviceID  string  `json:"deviceId"`
	Antenna   int     `json:"antenna"`
	Barrier   float64 `json:"barrier"`
	IsProcess bool    `json:"isProcess"`
}

// healthPayload is the periodic device status report.
type healthPayload struct {
	UserName   string  `json:"userName"`
	RFIDStatus string  `json:"rfidStatus"`
	GPSStatus  string  `json:"gpsStatus"`
	MACAddress string  `json:"macAddress"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	DateTime   string  `json:"dateTime"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}
