package utils

import (
	"os"

	"gopkg.in/yaml.v3"
)

/*
MergeYamlStr 按顺序合并多个yaml文件为单个文本，后出现的键覆盖先前的。
两边都是映射时逐键深度合并，标量和数组整体替换；键保持首次出现的顺序。
输出剥离全部注释，skips中的顶层键不输出。
*/
func MergeYamlStr(paths []string, skips ...string) (string, error) {
	merged := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		var doc yaml.Node
		if err = yaml.Unmarshal(content, &doc); err != nil {
			return "", err
		}
		if len(doc.Content) == 0 {
			continue
		}
		root := doc.Content[0]
		if root.Kind != yaml.MappingNode {
			continue
		}
		mergeMapNodes(merged, root)
	}
	skipMap := make(map[string]bool)
	for _, k := range skips {
		skipMap[k] = true
	}
	out := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for i := 0; i+1 < len(merged.Content); i += 2 {
		if skipMap[merged.Content[i].Value] {
			continue
		}
		out.Content = append(out.Content, merged.Content[i], merged.Content[i+1])
	}
	if len(out.Content) == 0 {
		return "", nil
	}
	clearComments(out)
	data, err := yaml.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// mergeMapNodes 将src的键值并入dst，已有键保持原位置
func mergeMapNodes(dst, src *yaml.Node) {
	for i := 0; i+1 < len(src.Content); i += 2 {
		key, val := src.Content[i], src.Content[i+1]
		pos := -1
		for j := 0; j+1 < len(dst.Content); j += 2 {
			if dst.Content[j].Value == key.Value {
				pos = j
				break
			}
		}
		if pos < 0 {
			dst.Content = append(dst.Content, key, val)
			continue
		}
		old := dst.Content[pos+1]
		if old.Kind == yaml.MappingNode && val.Kind == yaml.MappingNode {
			mergeMapNodes(old, val)
		} else {
			dst.Content[pos+1] = val
		}
	}
}

func clearComments(node *yaml.Node) {
	node.HeadComment = ""
	node.LineComment = ""
	node.FootComment = ""
	for _, sub := range node.Content {
		clearComments(sub)
	}
}
