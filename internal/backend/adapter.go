package backend

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/purposesproject7/vista-sub001/internal/model"
)

// 历史接口返回格式不统一：
//   {success, data} / {success, faculty} / {success, coordinators} / {success, message}
//   以及直接返回裸对象。统一转换成 model.Envelope。

var errNotObject = errors.New("response is not a JSON object")

// Normalize 把历史返回格式转换成统一外壳
// payloadKeys 按顺序尝试，均不存在时依次回退到 "data" 与整个对象
func Normalize[T any](raw []byte, payloadKeys ...string) (model.Envelope[T], error) {
	fields, err := decodeObject(raw)
	if err != nil {
		return model.Envelope[T]{}, err
	}

	// 已经是统一格式
	if okRaw, ok := fields["ok"]; ok {
		if _, hasPayload := fields["payload"]; hasPayload || bytes.Equal(bytes.TrimSpace(okRaw), []byte("false")) {
			var env model.Envelope[T]
			if err := sonic.Unmarshal(raw, &env); err != nil {
				return model.Envelope[T]{}, fmt.Errorf("decode envelope: %w", err)
			}
			if !env.OK && env.Error == nil {
				env.Error = &model.ErrorInfo{Message: "request failed"}
			}
			return env, nil
		}
	}

	if successRaw, ok := fields["success"]; ok {
		var success bool
		if err := sonic.Unmarshal(successRaw, &success); err != nil {
			return model.Envelope[T]{}, fmt.Errorf("decode success flag: %w", err)
		}
		if !success {
			return model.Fail[T](messageOf(fields, "request failed")), nil
		}
	}

	payloadRaw := raw
	keys := make([]string, 0, len(payloadKeys)+1)
	keys = append(keys, payloadKeys...)
	for _, key := range append(keys, "data") {
		if v, ok := fields[key]; ok {
			payloadRaw = v
			break
		}
	}

	var payload T
	if len(bytes.TrimSpace(payloadRaw)) > 0 && !bytes.Equal(bytes.TrimSpace(payloadRaw), []byte("null")) {
		if err := sonic.Unmarshal(payloadRaw, &payload); err != nil {
			return model.Envelope[T]{}, fmt.Errorf("decode payload: %w", err)
		}
	}
	return model.Ok(payload), nil
}

// messageOf 依次读取 message / error / msg 字段
func messageOf(fields map[string]json.RawMessage, fallback string) string {
	for _, key := range []string{"message", "error", "msg"} {
		v, ok := fields[key]
		if !ok {
			continue
		}
		var s string
		if err := sonic.Unmarshal(v, &s); err == nil && s != "" {
			return s
		}
		// {error: {message: "..."}}
		var nested struct {
			Message string `json:"message"`
		}
		if err := sonic.Unmarshal(v, &nested); err == nil && nested.Message != "" {
			return nested.Message
		}
	}
	return fallback
}

func decodeObject(raw []byte) (map[string]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errNotObject
	}
	var fields map[string]json.RawMessage
	if err := sonic.Unmarshal(trimmed, &fields); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return fields, nil
}

type bulkFailure struct {
	Key        string `json:"key"`
	EmployeeID string `json:"employeeId"`
	RegNo      string `json:"regNo"`
	Name       string `json:"name"`
	Email      string `json:"emailId"`
	Error      string `json:"error"`
	Message    string `json:"message"`
	Reason     string `json:"reason"`
}

type bulkShape struct {
	Created *int              `json:"created"`
	Failed  json.RawMessage   `json:"failed"`
	Errors  []json.RawMessage `json:"errors"`
	Results *struct {
		Successful []json.RawMessage `json:"successful"`
		Failed     []json.RawMessage `json:"failed"`
	} `json:"results"`
}

// NormalizeBulk 解析批量创建结果
// 支持 {created, failed, errors} 与 {results: {successful, failed}} 两种格式，可包在 data 里
func NormalizeBulk(raw []byte) (model.Envelope[model.SubmitResult], error) {
	env, err := Normalize[json.RawMessage](raw)
	if err != nil || !env.OK {
		return model.Envelope[model.SubmitResult]{OK: env.OK, Error: env.Error}, err
	}

	var shape bulkShape
	if err := sonic.Unmarshal(env.Payload, &shape); err != nil {
		return model.Envelope[model.SubmitResult]{}, fmt.Errorf("decode bulk result: %w", err)
	}

	var result model.SubmitResult
	if shape.Results != nil {
		result.Created = len(shape.Results.Successful)
		result.Failed = len(shape.Results.Failed)
		for _, f := range shape.Results.Failed {
			result.Errors = append(result.Errors, decodeBulkFailure(f))
		}
		return model.Ok(result), nil
	}

	if shape.Created != nil {
		result.Created = *shape.Created
	}
	for _, e := range shape.Errors {
		result.Errors = append(result.Errors, decodeBulkFailure(e))
	}
	// failed 可能是数量，也可能是失败记录列表
	if len(shape.Failed) > 0 {
		var n int
		if err := sonic.Unmarshal(shape.Failed, &n); err == nil {
			result.Failed = n
		} else {
			var items []json.RawMessage
			if err := sonic.Unmarshal(shape.Failed, &items); err != nil {
				return model.Envelope[model.SubmitResult]{}, fmt.Errorf("decode failed records: %w", err)
			}
			result.Failed = len(items)
			if len(shape.Errors) == 0 {
				for _, item := range items {
					result.Errors = append(result.Errors, decodeBulkFailure(item))
				}
			}
		}
	} else {
		result.Failed = len(result.Errors)
	}
	return model.Ok(result), nil
}

func decodeBulkFailure(raw json.RawMessage) model.SubmitError {
	var s string
	if err := sonic.Unmarshal(raw, &s); err == nil {
		return model.SubmitError{Message: s}
	}

	var f bulkFailure
	if err := sonic.Unmarshal(raw, &f); err != nil {
		return model.SubmitError{Message: strings.TrimSpace(string(raw))}
	}
	out := model.SubmitError{Key: firstNonEmpty(f.Key, f.EmployeeID, f.RegNo, f.Email, f.Name)}
	out.Message = firstNonEmpty(f.Error, f.Message, f.Reason, "record rejected")
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
