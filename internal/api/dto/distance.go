package dto

type DistanceResponse struct {
	PropertyID        int64  `json:"propertyId"`
	PoiID             int64  `json:"poiId"`
	Mode              string `json:"mode"`
	DistanceMeters    int    `json:"distanceMeters"`
	TimeSeconds       int    `json:"timeSeconds"`
	FormattedDistance string `json:"formattedDistance"`
	FormattedTime     string `json:"formattedTime"`
	Estimated         bool   `json:"estimated"`
	Cached            bool   `json:"cached"`
}

type DistanceEnvelope struct {
	Data DistanceResponse `json:"data"`
}

type DistanceListEnvelope struct {
	Data []DistanceResponse `json:"data"`
}

type BatchDistanceRequest struct {
	PoiIDs []int64 `json:"poiIds" validate:"required,min=1,dive,gt=0"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
