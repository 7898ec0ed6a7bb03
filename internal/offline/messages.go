package offline

const (
	typeWebsocket  = "ws_msg"
	typeFileUpload = "file_upload"

	uploadAsset        = "asset"
	uploadModelElement = "model-element"
)

// wsPayloadKeys is the full key set of a websocket message payload, in the
// order the destination SDK serialises it. Unused keys are null.
var wsPayloadKeys = []string{
	"code",
	"context",
	"env_details",
	"fileName",
	"git_meta",
	"gpu_static_info",
	"graph",
	"html",
	"htmlOverride",
	"installed_packages",
	"local_timestamp",
	"log_dependency",
	"log_other",
	"log_system_info",
	"metric",
	"os_packages",
	"param",
	"params",
	"stderr",
	"stdout",
}

func envelope(kind string, payload Object) Object {
	return Object{{Key: "payload", Value: payload}, {Key: "type", Value: kind}}
}

func wsMessage(timestamp int64, key string, value any) Object {
	payload := make(Object, 0, len(wsPayloadKeys))
	for _, k := range wsPayloadKeys {
		switch k {
		case "local_timestamp":
			payload = append(payload, Field{Key: k, Value: timestamp})
		case key:
			payload = append(payload, Field{Key: k, Value: value})
		default:
			payload = append(payload, Field{Key: k})
		}
	}
	return envelope(typeWebsocket, payload)
}

// FileNameMessage records the script that produced the run.
func FileNameMessage(fileName string, timestamp int64) Object {
	return wsMessage(timestamp, "fileName", fileName)
}

// UserMessage records the run owner as the env_details user. Every other
// env_details field stays null.
func UserMessage(user string, timestamp int64) Object {
	details := Object{
		{Key: "command"},
		{Key: "hostname"},
		{Key: "ip"},
		{Key: "network_interfaces_ips"},
		{Key: "os"},
		{Key: "os_type"},
		{Key: "pid"},
		{Key: "python_exe"},
		{Key: "python_version"},
		{Key: "python_version_verbose"},
		{Key: "user", Value: user},
	}
	return wsMessage(timestamp, "env_details", details)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// GitMetaMessage records the commit as the parent revision and the remote
// URL as origin. Empty values encode as null.
func GitMetaMessage(commit, origin string, timestamp int64) Object {
	value := Object{
		{Key: "branch"},
		{Key: "origin", Value: nullable(origin)},
		{Key: "parent", Value: nullable(commit)},
		{Key: "repo_name"},
		{Key: "root"},
		{Key: "status"},
		{Key: "user"},
	}
	return wsMessage(timestamp, "git_meta", value)
}

func LogOtherMessage(key, value string, timestamp int64) Object {
	return wsMessage(timestamp, "log_other", Object{{Key: "key", Value: key}, {Key: "val", Value: value}})
}

func ParamMessage(name, value string, timestamp int64) Object {
	param := Object{
		{Key: "paramName", Value: name},
		{Key: "paramValue", Value: value},
		{Key: "step"},
	}
	return wsMessage(timestamp, "param", param)
}

// MetricMessage records one metric point. A nil step encodes as null.
func MetricMessage(name string, value float64, step *int64, timestamp int64) Object {
	metric := Object{
		{Key: "epoch", Value: 0},
		{Key: "metricName", Value: name},
		{Key: "metricValue", Value: value},
		{Key: "step", Value: step},
	}
	return wsMessage(timestamp, "metric", metric)
}

// AssetUpload describes a file stored next to the message log.
type AssetUpload struct {
	AssetID   string
	FileName  string
	Extension string
	FilePath  string
	Timestamp int64
}

func AssetMessage(a AssetUpload) Object {
	params := Object{
		{Key: "assetId", Value: a.AssetID},
		{Key: "context"},
		{Key: "extension", Value: a.Extension},
		{Key: "fileName", Value: a.FileName},
		{Key: "overwrite", Value: false},
		{Key: "runId"},
		{Key: "step"},
	}
	payload := Object{
		{Key: "additional_params", Value: params},
		{Key: "clean", Value: true},
		{Key: "file_path", Value: a.FilePath},
		{Key: "local_timestamp", Value: a.Timestamp},
		{Key: "upload_type", Value: uploadAsset},
	}
	return envelope(typeFileUpload, payload)
}

// ModelElementMessage is an asset grouped under a model name.
func ModelElementMessage(a AssetUpload, modelName string) Object {
	params := Object{
		{Key: "assetId", Value: a.AssetID},
		{Key: "context"},
		{Key: "extension", Value: a.Extension},
		{Key: "fileName", Value: a.FileName},
		{Key: "groupingName", Value: modelName},
		{Key: "overwrite", Value: false},
		{Key: "runId"},
		{Key: "step"},
		{Key: "type", Value: uploadModelElement},
	}
	payload := Object{
		{Key: "additional_params", Value: params},
		{Key: "clean", Value: true},
		{Key: "file_path", Value: a.FilePath},
		{Key: "local_timestamp", Value: a.Timestamp},
		{Key: "metadata", Value: Object{}},
		{Key: "upload_type", Value: uploadModelElement},
	}
	return envelope(typeFileUpload, payload)
}
