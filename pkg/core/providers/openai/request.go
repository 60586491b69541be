package openai

import (
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/param"

	"github.com/vango-go/midas/pkg/core"
	"github.com/vango-go/midas/pkg/core/types"
)

func buildParams(req *types.ChatRequest) (openai.ChatCompletionNewParams, error) {
	if req == nil {
		return openai.ChatCompletionNewParams{}, core.NewInvalidRequestError("request is required")
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = DefaultModel
	}

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if sys := strings.TrimSpace(req.System); sys != "" {
		msgs = append(msgs, openai.SystemMessage(sys))
	}
	for i, m := range req.Messages {
		mp, err := convMessage(m)
		if err != nil {
			return openai.ChatCompletionNewParams{}, core.NewInvalidRequestErrorWithParam(err.Error(), fmt.Sprintf("messages[%d]", i))
		}
		msgs = append(msgs, mp)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	params := openai.ChatCompletionNewParams{
		Model:     model,
		Messages:  msgs,
		MaxTokens: param.NewOpt(int64(maxTokens)),
	}
	if req.Temperature != nil {
		params.Temperature = param.NewOpt(*req.Temperature)
	}
	if req.WantsJSON() {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		}
	}
	return params, nil
}

func convMessage(m types.Message) (openai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case types.RoleAssistant:
		return openai.AssistantMessage(m.TextContent()), nil
	case types.RoleUser:
	default:
		return openai.ChatCompletionMessageParamUnion{}, fmt.Errorf("unsupported role %q", m.Role)
	}

	images := m.Images()
	if len(images) == 0 {
		return openai.UserMessage(m.TextContent()), nil
	}

	var parts []openai.ChatCompletionContentPartUnionParam
	if text := m.TextContent(); text != "" {
		parts = append(parts, openai.TextContentPart(text))
	}
	for _, img := range images {
		detail := img.Source.Detail
		if detail == "" {
			detail = "auto"
		}
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL:    img.Source.DataURL(),
			Detail: detail,
		}))
	}
	return openai.ChatCompletionMessageParamUnion{
		OfUser: &openai.ChatCompletionUserMessageParam{
			Content: openai.ChatCompletionUserMessageParamContentUnion{
				OfArrayOfContentParts: parts,
			},
		},
	}, nil
}
