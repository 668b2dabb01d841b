package foxglove

const (
	ChannelTransforms uint64 = 1
	ChannelSkeleton   uint64 = 2
	ChannelLog        uint64 = 3
)

const DefaultFrameTransformsSchema = `{
  "type": "object",
  "properties": {
    "transforms": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "timestamp": {
            "type": "object",
            "properties": { "sec": { "type": "integer" }, "nsec": { "type": "integer" } }
          },
          "parent_frame_id": { "type": "string" },
          "child_frame_id": { "type": "string" },
          "translation": {
            "type": "object",
            "properties": { "x": { "type": "number" }, "y": { "type": "number" }, "z": { "type": "number" } }
          },
          "rotation": {
            "type": "object",
            "properties": {
              "x": { "type": "number" }, "y": { "type": "number" },
              "z": { "type": "number" }, "w": { "type": "number" }
            }
          }
        }
      }
    }
  }
}`

const DefaultSkeletonSchema = `{
  "type": "object",
  "properties": {
    "seq": { "type": "integer" },
    "ts": { "type": "string" },
    "remote": { "type": "string" },
    "joints": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "name": { "type": "string" },
          "local": { "type": "object", "additionalProperties": true },
          "model": { "type": "object", "additionalProperties": true }
        },
        "required": ["name", "local", "model"]
      }
    }
  },
  "required": ["seq", "joints"]
}`

const DefaultLogSchema = `{
  "type": "object",
  "properties": {
    "timestamp": {
      "type": "object",
      "properties": { "sec": { "type": "integer" }, "nsec": { "type": "integer" } }
    },
    "level": { "type": "integer" },
    "message": { "type": "string" },
    "name": { "type": "string" },
    "file": { "type": "string" },
    "line": { "type": "integer" }
  }
}`

type Config struct {
	WSAddr         string
	Name           string
	ParentFrameID  string
	TransformTopic string
	SkeletonTopic  string
	LogTopic       string
	LogName        string
	SendBuf        int
}

func DefaultConfig() Config {
	return Config{
		WSAddr:         "127.0.0.1:8765",
		Name:           "posewire",
		ParentFrameID:  "world",
		TransformTopic: "/tf",
		SkeletonTopic:  "/posewire/skeleton",
		LogTopic:       "/posewire/log",
		LogName:        "posewire",
		SendBuf:        256,
	}
}

func (cfg *Config) normalize() {
	def := DefaultConfig()
	if cfg.WSAddr == "" {
		cfg.WSAddr = def.WSAddr
	}
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.ParentFrameID == "" {
		cfg.ParentFrameID = def.ParentFrameID
	}
	if cfg.TransformTopic == "" {
		cfg.TransformTopic = def.TransformTopic
	}
	if cfg.SkeletonTopic == "" {
		cfg.SkeletonTopic = def.SkeletonTopic
	}
	if cfg.LogTopic == "" {
		cfg.LogTopic = def.LogTopic
	}
	if cfg.LogName == "" {
		cfg.LogName = cfg.Name
	}
	if cfg.SendBuf <= 0 {
		cfg.SendBuf = def.SendBuf
	}
}
