package portal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/dropDatabas3/partnerportal/internal/transport"
	"github.com/dropDatabas3/partnerportal/internal/validation"
)

type Tutorial struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	VideoURL    string `json:"video_url"`
}

// TutorialInput para alta y modificación.
type TutorialInput struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	VideoURL    string `json:"video_url" validate:"required,url"`
}

type tutorialWire struct {
	ID          flexString `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	VideoURL    string     `json:"video_url"`
}

func (w tutorialWire) tutorial() Tutorial {
	return Tutorial{ID: string(w.ID), Title: w.Title, Description: w.Description, VideoURL: w.VideoURL}
}

type tutorialData struct {
	Tutorials *[]tutorialWire `json:"tutorials"`
	Tutorial  *tutorialWire   `json:"tutorial"`
}

// ListTutorials (admin) devuelve todos los tutoriales.
func (s *Service) ListTutorials(ctx context.Context) ([]Tutorial, error) {
	return s.listTutorials(ctx, "/admin/tutorials")
}

// PublicTutorials devuelve los tutoriales visibles para cualquier usuario.
func (s *Service) PublicTutorials(ctx context.Context) ([]Tutorial, error) {
	return s.listTutorials(ctx, "/tutorials")
}

func (s *Service) listTutorials(ctx context.Context, path string) ([]Tutorial, error) {
	const fail = "Failed to fetch tutorials"
	resp, err := s.api.Send(ctx, transport.Request{Method: http.MethodGet, Path: path})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fail, err)
	}
	var data tutorialData
	if _, err := decodeEnvelope(resp, &data, fail); err != nil {
		return nil, fmt.Errorf("%s: %w", fail, err)
	}
	if data.Tutorials == nil {
		return nil, errors.New(fail)
	}
	out := make([]Tutorial, 0, len(*data.Tutorials))
	for _, w := range *data.Tutorials {
		out = append(out, w.tutorial())
	}
	return out, nil
}

func (s *Service) CreateTutorial(ctx context.Context, in TutorialInput) (Tutorial, error) {
	return s.writeTutorial(ctx, http.MethodPost, "/admin/tutorials", in, "Failed to create tutorial")
}

func (s *Service) UpdateTutorial(ctx context.Context, id string, in TutorialInput) (Tutorial, error) {
	if id == "" {
		return Tutorial{}, errors.New("Failed to update tutorial: missing id")
	}
	return s.writeTutorial(ctx, http.MethodPut, "/admin/tutorials/"+url.PathEscape(id), in, "Failed to update tutorial")
}

func (s *Service) writeTutorial(ctx context.Context, method, path string, in TutorialInput, fail string) (Tutorial, error) {
	if err := validation.Struct(in); err != nil {
		return Tutorial{}, fmt.Errorf("%s: %w", fail, err)
	}
	resp, err := s.api.Send(ctx, transport.Request{Method: method, Path: path, Body: in})
	if err != nil {
		return Tutorial{}, fmt.Errorf("%s: %w", fail, err)
	}
	var data tutorialData
	if _, err := decodeEnvelope(resp, &data, fail); err != nil {
		return Tutorial{}, fmt.Errorf("%s: %w", fail, err)
	}
	if data.Tutorial == nil {
		return Tutorial{}, errors.New(fail)
	}
	return data.Tutorial.tutorial(), nil
}

func (s *Service) DeleteTutorial(ctx context.Context, id string) error {
	const fail = "Failed to delete tutorial"
	if id == "" {
		return errors.New(fail + ": missing id")
	}
	resp, err := s.api.Send(ctx, transport.Request{Method: http.MethodDelete, Path: "/admin/tutorials/" + url.PathEscape(id)})
	if err != nil {
		return fmt.Errorf("%s: %w", fail, err)
	}
	if _, err := decodeEnvelope(resp, nil, fail); err != nil {
		return fmt.Errorf("%s: %w", fail, err)
	}
	return nil
}
