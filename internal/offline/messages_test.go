package offline

import (
	"math"
	"strings"
	"testing"
)

func encode(t *testing.T, msg Object) string {
	t.Helper()
	line, err := Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal() err=%v", err)
	}
	return string(line)
}

// wsLine renders the expected websocket line with one populated key.
func wsLine(timestamp, key, value string) string {
	parts := make([]string, 0, len(wsPayloadKeys))
	for _, k := range wsPayloadKeys {
		v := "null"
		switch k {
		case "local_timestamp":
			v = timestamp
		case key:
			v = value
		}
		parts = append(parts, `"`+k+`": `+v)
	}
	return `{"payload": {` + strings.Join(parts, ", ") + `}, "type": "ws_msg"}`
}

func TestParamMessageBytes(t *testing.T) {
	got := encode(t, ParamMessage("lr", "0.01", 1000))
	want := `{"payload": {"code": null, "context": null, "env_details": null, "fileName": null, "git_meta": null, ` +
		`"gpu_static_info": null, "graph": null, "html": null, "htmlOverride": null, "installed_packages": null, ` +
		`"local_timestamp": 1000, "log_dependency": null, "log_other": null, "log_system_info": null, "metric": null, ` +
		`"os_packages": null, "param": {"paramName": "lr", "paramValue": "0.01", "step": null}, "params": null, ` +
		`"stderr": null, "stdout": null}, "type": "ws_msg"}`
	if got != want {
		t.Fatalf("ParamMessage()=\n%s\nwant\n%s", got, want)
	}
}

func TestWebsocketMessages(t *testing.T) {
	step := int64(3)
	cases := []struct {
		name string
		msg  Object
		want string
	}{
		{"filename", FileNameMessage("train.py", 5), wsLine("5", "fileName", `"train.py"`)},
		{"user", UserMessage("alice", 5), wsLine("5", "env_details",
			`{"command": null, "hostname": null, "ip": null, "network_interfaces_ips": null, "os": null, "os_type": null, `+
				`"pid": null, "python_exe": null, "python_version": null, "python_version_verbose": null, "user": "alice"}`)},
		{"git", GitMetaMessage("abc123", "", 5), wsLine("5", "git_meta",
			`{"branch": null, "origin": null, "parent": "abc123", "repo_name": null, "root": null, "status": null, "user": null}`)},
		{"other", LogOtherMessage("Uploaded from", "MLFlow", 5), wsLine("5", "log_other", `{"key": "Uploaded from", "val": "MLFlow"}`)},
		{"metric", MetricMessage("loss", 0.25, &step, 7), wsLine("7", "metric",
			`{"epoch": 0, "metricName": "loss", "metricValue": 0.25, "step": 3}`)},
		{"metric nan", MetricMessage("loss", math.NaN(), nil, 7), wsLine("7", "metric",
			`{"epoch": 0, "metricName": "loss", "metricValue": NaN, "step": null}`)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := encode(t, tc.msg); got != tc.want {
				t.Fatalf("got\n%s\nwant\n%s", got, tc.want)
			}
		})
	}
}

func TestFileUploadMessages(t *testing.T) {
	upload := AssetUpload{AssetID: "abc", FileName: "model/model.pkl", Extension: "pkl", FilePath: "tmp123", Timestamp: 9}

	asset := encode(t, AssetMessage(upload))
	wantAsset := `{"payload": {"additional_params": {"assetId": "abc", "context": null, "extension": "pkl", ` +
		`"fileName": "model/model.pkl", "overwrite": false, "runId": null, "step": null}, "clean": true, ` +
		`"file_path": "tmp123", "local_timestamp": 9, "upload_type": "asset"}, "type": "file_upload"}`
	if asset != wantAsset {
		t.Fatalf("AssetMessage()=\n%s\nwant\n%s", asset, wantAsset)
	}

	model := encode(t, ModelElementMessage(upload, "clf"))
	wantModel := `{"payload": {"additional_params": {"assetId": "abc", "context": null, "extension": "pkl", ` +
		`"fileName": "model/model.pkl", "groupingName": "clf", "overwrite": false, "runId": null, "step": null, ` +
		`"type": "model-element"}, "clean": true, "file_path": "tmp123", "local_timestamp": 9, "metadata": {}, ` +
		`"upload_type": "model-element"}, "type": "file_upload"}`
	if model != wantModel {
		t.Fatalf("ModelElementMessage()=\n%s\nwant\n%s", model, wantModel)
	}
}
