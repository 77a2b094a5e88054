package handlers

import (
	"github.com/Brownie44l1/deepcatcher-api/internal/pipeline"
)

type PredictionRequest struct {
	Image []float32 `json:"image" binding:"required"`
}

// ItemResponse reports one uploaded image. Class and Confidence are only set
// once the image was classified.
type ItemResponse struct {
	Index      int            `json:"index"`
	Filename   string         `json:"filename,omitempty"`
	Format     string         `json:"format,omitempty"`
	State      pipeline.State `json:"state"`
	Class      string         `json:"class,omitempty"`
	Confidence *float64       `json:"confidence,omitempty"`
	Error      string         `json:"error,omitempty"`
}

type BatchResponse struct {
	Results    []ItemResponse `json:"results"`
	Classified int            `json:"classified"`
	Failed     int            `json:"failed"`
}

func newItemResponse(item pipeline.Item) ItemResponse {
	resp := ItemResponse{
		Index:    item.Index,
		Filename: item.Upload.Filename,
		Format:   item.Upload.Format,
		State:    item.State,
	}
	if item.Result != nil {
		conf := item.Result.Confidence
		resp.Class = item.Result.Label
		resp.Confidence = &conf
	}
	if item.Err != nil {
		resp.Error = item.Err.Error()
	}
	return resp
}
