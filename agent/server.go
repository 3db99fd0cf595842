package agent

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"pt-butler/config"
	"pt-butler/middleware"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Server 伴生进程的 HTTP RPC 服务端，跑在每台下载服务器上
type Server struct {
	cfg config.AgentConfig
}

func NewServer(cfg config.AgentConfig) *Server {
	return &Server{cfg: cfg}
}

// Router 组装 gin 路由
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.TokenAuth(s.cfg.Token))

	router.POST("/agent", s.handleRPC)
	return router
}

// Run 启动监听，阻塞
func (s *Server) Run() error {
	log.Infof("agent listening on :%d, data root %s", s.cfg.Port, s.cfg.DataRoot)
	return s.Router().Run(fmt.Sprintf(":%d", s.cfg.Port))
}

func (s *Server) handleRPC(c *gin.Context) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Message: err.Error()})
		return
	}

	var (
		data any
		err  error
	)
	switch req.Method {
	case "freeSpace":
		data, err = s.freeSpace(req.Data)
	case "allFileItem":
		data, err = s.allFileItem(req.Data)
	case "remove":
		err = s.remove(req.Data)
	default:
		err = fmt.Errorf("unknown method: %s", req.Method)
	}

	if err != nil {
		log.Warnf("agent method %s failed: %v", req.Method, err)
		c.JSON(http.StatusOK, Response{Success: false, Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

type rpcArgs struct {
	UID    int64  `json:"uid"`
	Site   string `json:"site"`
	SiteID int64  `json:"site_id"`
	Path   string `json:"path"`
}

func parseArgs(data map[string]any) (rpcArgs, error) {
	var args rpcArgs
	raw, err := json.Marshal(data)
	if err != nil {
		return args, err
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return args, err
	}
	return args, nil
}

// userDir 用户在本机的下载根目录 {root}/{site}/{uid}
func (s *Server) userDir(args rpcArgs) string {
	return filepath.Join(s.cfg.DataRoot, args.Site, strconv.FormatInt(args.UID, 10))
}

func (s *Server) freeSpace(data map[string]any) (any, error) {
	args, err := parseArgs(data)
	if err != nil {
		return nil, err
	}

	path := args.Path
	if path == "" {
		path = s.cfg.DataRoot
	}
	// 路径尚未创建时退回数据根目录查同一文件系统
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path = s.cfg.DataRoot
	}

	free, err := diskFree(path)
	if err != nil {
		return nil, fmt.Errorf("statfs %s: %w", path, err)
	}
	return gin.H{"free": free}, nil
}

func (s *Server) allFileItem(data map[string]any) (any, error) {
	args, err := parseArgs(data)
	if err != nil {
		return nil, err
	}

	dir := s.userDir(args)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []FileItem{}, nil
		}
		return nil, err
	}

	items := make([]FileItem, 0, len(entries))
	for _, entry := range entries {
		siteID, err := strconv.ParseInt(entry.Name(), 10, 64)
		if err != nil {
			// 用户目录下只认 siteId 命名的条目
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		downloaded := true
		if entry.IsDir() {
			downloaded, err = isComplete(filepath.Join(dir, entry.Name()))
			if err != nil {
				log.Warnf("agent scan %s/%s failed: %v", dir, entry.Name(), err)
				continue
			}
		}

		items = append(items, FileItem{
			SiteID:     siteID,
			Downloaded: downloaded,
			CreatedAt:  info.ModTime(),
		})
	}
	return items, nil
}

func (s *Server) remove(data map[string]any) error {
	args, err := parseArgs(data)
	if err != nil {
		return err
	}
	if args.SiteID == 0 {
		return fmt.Errorf("remove requires site_id")
	}

	target := filepath.Join(s.userDir(args), strconv.FormatInt(args.SiteID, 10))
	// RemoveAll 对不存在的路径返回 nil，已被删过视为成功
	return os.RemoveAll(target)
}

// isComplete 目录内递归不存在半成品文件即视为下载完成
func isComplete(dir string) (bool, error) {
	complete := true
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		for _, marker := range partialMarkers {
			if strings.HasSuffix(d.Name(), marker) {
				complete = false
				return filepath.SkipAll
			}
		}
		return nil
	})
	return complete, err
}
