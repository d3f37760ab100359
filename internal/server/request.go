package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/roach88/rollcall/internal/ir"
)

// PresenceRequest reports room transitions.
type PresenceRequest struct {
	Events []PresenceEventRequest `json:"events" validate:"required,min=1,dive"`
}

// PresenceEventRequest is one transition. An empty NewRoomID means the
// entity left. OldRoomID is informational: the registry knows where the
// entity was. SpaceID records the space of NewRoomID when set.
type PresenceEventRequest struct {
	EntityID  string `json:"entity_id" validate:"required"`
	NewRoomID string `json:"new_room_id"`
	OldRoomID string `json:"old_room_id"`
	SpaceID   string `json:"space_id" validate:"excluded_without=NewRoomID"`
}

// AudioRequest updates the local audio state of an entity.
type AudioRequest struct {
	Muted  *bool    `json:"muted"`
	Volume *float64 `json:"volume" validate:"omitempty,gte=0,lte=200"`
}

// RelationshipRequest updates the relationship flags of an entity.
type RelationshipRequest struct {
	Friend  *bool `json:"friend"`
	Blocked *bool `json:"blocked"`
}

// RolesRequest replaces the roles an entity holds in a space.
type RolesRequest struct {
	SpaceID string   `json:"space_id" validate:"required"`
	Roles   []string `json:"roles" validate:"dive,required"`
}

// StreamRequest reports the stream an entity is live with and who is
// watching it. An empty StreamID means the stream ended. Viewers, when
// set, replaces the viewer list.
type StreamRequest struct {
	StreamID string   `json:"stream_id"`
	Viewers  []string `json:"viewers" validate:"excluded_without=StreamID,dive,required"`
}

// SelfAudioRequest updates the local participant's own mute and deafen
// state. Omitted fields keep their value.
type SelfAudioRequest struct {
	Muted    *bool `json:"muted"`
	Deafened *bool `json:"deafened"`
}

// RoomRequest updates room flags.
type RoomRequest struct {
	Stage *bool `json:"stage" validate:"required"`
}

// ToggleRequest enables or disables a group or a whole check.
type ToggleRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// decode reads a JSON body into dst and validates it.
// It writes the error response itself and reports whether to continue.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		badRequest(w, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			details := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				details = append(details, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			writeError(w, http.StatusBadRequest, CodeValidation, "request validation failed", details...)
			return false
		}
		badRequest(w, err.Error())
		return false
	}
	return true
}

// parseKind accepts a check kind token, or "" when allowEmpty is set.
func parseKind(s string, allowEmpty bool) (ir.CheckKind, error) {
	if s == "" && allowEmpty {
		return "", nil
	}
	k, ok := ir.ParseCheckKind(s)
	if !ok {
		return "", fmt.Errorf("unknown check kind %q", s)
	}
	return k, nil
}
